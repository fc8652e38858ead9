package utils

import "image"

// ClampRect intersects r with bounds. Disjoint inputs yield a zero-area rect.
func ClampRect(r, bounds image.Rectangle) image.Rectangle {
	r = r.Canon().Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}
	}
	return r
}

// ExpandRect grows r by padding on every side and clamps the result to bounds.
func ExpandRect(r, bounds image.Rectangle, padding int) image.Rectangle {
	if padding < 0 {
		padding = 0
	}
	return ClampRect(r.Canon().Inset(-padding), bounds)
}

// Overlap returns the intersection area of a and b divided by the smaller of
// the two areas. It is not IoU: a rect fully inside a larger one scores 1.
func Overlap(a, b image.Rectangle) float64 {
	a, b = a.Canon(), b.Canon()
	areaA := area(a)
	areaB := area(b)
	if areaA == 0 || areaB == 0 {
		return 0
	}
	inter := area(a.Intersect(b))
	if inter == 0 {
		return 0
	}
	return float64(inter) / float64(min(areaA, areaB))
}

func area(r image.Rectangle) int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}
