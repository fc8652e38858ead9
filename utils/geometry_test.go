package utils

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampRect(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 80)

	tests := []struct {
		name string
		in   image.Rectangle
		want image.Rectangle
	}{
		{"inside", image.Rect(10, 10, 40, 40), image.Rect(10, 10, 40, 40)},
		{"crosses right and bottom", image.Rect(90, 70, 120, 100), image.Rect(90, 70, 100, 80)},
		{"negative origin", image.Rect(-20, -5, 10, 10), image.Rect(0, 0, 10, 10)},
		{"disjoint", image.Rect(200, 200, 220, 220), image.Rectangle{}},
		{"touching edge only", image.Rect(100, 0, 120, 10), image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampRect(tt.in, bounds)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.In(bounds) || got.Empty())
		})
	}
}

func TestExpandRect(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)

	assert.Equal(t, image.Rect(10, 10, 50, 50), ExpandRect(image.Rect(20, 20, 40, 40), bounds, 10))
	assert.Equal(t, image.Rect(0, 0, 15, 15), ExpandRect(image.Rect(2, 2, 5, 5), bounds, 10))
	assert.Equal(t, image.Rect(20, 20, 40, 40), ExpandRect(image.Rect(20, 20, 40, 40), bounds, -5))

	got := ExpandRect(image.Rect(90, 90, 100, 100), bounds, 50)
	assert.True(t, got.In(bounds))
}

func TestOverlap(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)

	assert.Equal(t, 1.0, Overlap(a, a))
	assert.Equal(t, 0.0, Overlap(a, image.Rect(20, 20, 30, 30)))
	assert.Equal(t, 0.0, Overlap(a, image.Rect(10, 0, 20, 10)), "shared edge has no area")
	assert.InDelta(t, 0.5, Overlap(a, image.Rect(5, 0, 15, 10)), 1e-9)
	assert.Equal(t, 1.0, Overlap(a, image.Rect(2, 2, 4, 4)), "contained rect is measured against the smaller area")
	assert.Equal(t, 0.0, Overlap(a, image.Rectangle{}))
}
