package enhance

import (
	"fmt"
	"math"
	"runtime"

	"gocv.io/x/gocv"
)

func depth(m gocv.Mat) gocv.MatType {
	return m.Type() & 0x7
}

// pixelBuffer returns a copy of the samples of an 8-bit Mat in row-major,
// channel-interleaved order. Region views are cloned first so the buffer is
// always dense.
func pixelBuffer(m gocv.Mat) ([]byte, error) {
	if depth(m) != gocv.MatTypeCV8U {
		return nil, fmt.Errorf("expected 8-bit samples, got mat type %v", m.Type())
	}
	dense := m.Clone()
	defer dense.Close()
	return dense.ToBytes(), nil
}

// matFromBuffer builds an owned Mat from an interleaved sample buffer.
func matFromBuffer(rows, cols int, mt gocv.MatType, data []byte) (gocv.Mat, error) {
	view, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer view.Close()
	// NewMatFromBytes may alias data; the clone owns its own storage
	out := view.Clone()
	runtime.KeepAlive(data)
	return out, nil
}

// saturate rounds v to the nearest integer and clamps it to [0,255].
func saturate(v float64) uint8 {
	v = math.Round(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
