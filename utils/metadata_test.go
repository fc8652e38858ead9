package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func exifSegment(orientation byte) []byte {
	return []byte{
		0xFF, 0xD8,
		0xFF, 0xE1, 0x00, 0x22,
		'E', 'x', 'i', 'f', 0x00, 0x00,
		'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, orientation, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xFF, 0xD9,
	}
}

func TestReadOrientation(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"rotated portrait", exifSegment(6), 6},
		{"mirrored", exifSegment(2), 2},
		{"out of range", exifSegment(12), 1},
		{"no exif", []byte{0xFF, 0xD8, 0xFF, 0xD9}, 1},
		{"empty", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadOrientation(tt.data))
		})
	}

	info := ReadCaptureInfo(exifSegment(8))
	if assert.NotNil(t, info) && assert.NotNil(t, info.Orientation) {
		assert.Equal(t, 8, *info.Orientation)
	}
}
