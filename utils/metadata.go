package utils

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// CaptureInfo is the subset of EXIF data kept alongside an enhancement record.
type CaptureInfo struct {
	CameraMake   *string    `json:"camera_make,omitempty"`
	CameraModel  *string    `json:"camera_model,omitempty"`
	LensModel    *string    `json:"lens_model,omitempty"`
	ISO          *int       `json:"iso,omitempty"`
	ShutterSpeed *string    `json:"shutter_speed,omitempty"`
	FocalLength  *float64   `json:"focal_length,omitempty"`
	Orientation  *int       `json:"orientation,omitempty"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
}

func exifRational(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		// some writers store these as plain integers
		if v, errInt := tag.Int(0); errInt == nil {
			f := float64(v)
			return &f
		}
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}

func exifInt(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &v
}

func exifString(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	v, err := tag.StringVal()
	if err != nil {
		return nil
	}
	v = strings.TrimSpace(strings.TrimRight(v, "\x00"))
	if v == "" {
		return nil
	}
	return &v
}

func exifShutter(x *exif.Exif) *string {
	tag, err := x.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	var s string
	switch val := float64(num) / float64(den); {
	case num == 1 && den > 1:
		s = fmt.Sprintf("1/%d", den)
	case val >= 1:
		s = fmt.Sprintf("%.1fs", val)
	default:
		s = fmt.Sprintf("%.4fs", val)
	}
	return &s
}

// ReadCaptureInfo decodes EXIF from raw image bytes. It returns nil when the
// image carries no usable EXIF block.
func ReadCaptureInfo(data []byte) *CaptureInfo {
	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return nil
	}

	info := &CaptureInfo{
		CameraMake:   exifString(x, exif.Make),
		CameraModel:  exifString(x, exif.Model),
		LensModel:    exifString(x, exif.LensModel),
		ISO:          exifInt(x, exif.ISOSpeedRatings),
		ShutterSpeed: exifShutter(x),
		FocalLength:  exifRational(x, exif.FocalLength),
		Orientation:  exifInt(x, exif.Orientation),
	}
	if dt, err := x.DateTime(); err == nil {
		info.TakenAt = &dt
	}
	return info
}

// ReadOrientation returns the EXIF orientation tag (1-8) of raw image bytes,
// or 1 when it is absent or out of range.
func ReadOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return 1
	}
	v := exifInt(x, exif.Orientation)
	if v == nil || *v < 1 || *v > 8 {
		return 1
	}
	return *v
}
