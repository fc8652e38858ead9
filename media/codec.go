package media

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/camden-git/faceenhancer/utils"
)

const DefaultJPEGQuality = 95

// ParseFormat maps a file extension or format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "webp":
		return FormatWEBP, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// FormatForPath picks the output format from a filename's extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Extension returns the filename extension, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	case FormatWEBP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Decode reads image bytes into a Mat, keeping an alpha channel if present,
// and turns it upright according to its EXIF orientation. Formats OpenCV
// cannot read fall back to the Go image decoders.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("decode: no image data")
	}

	// IMReadUnchanged skips OpenCV's own orientation handling
	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err == nil && !mat.Empty() {
		return applyOrientation(mat, utils.ReadOrientation(data)), nil
	}
	mat.Close()

	img, decodeErr := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if decodeErr != nil {
		return gocv.NewMat(), fmt.Errorf("decode: unrecognized image data: %w", decodeErr)
	}
	return matFromImage(img)
}

// applyOrientation maps an EXIF orientation onto mat, consuming it.
func applyOrientation(mat gocv.Mat, orientation int) gocv.Mat {
	if orientation <= 1 || orientation > 8 {
		return mat
	}
	defer mat.Close()

	out := gocv.NewMat()
	switch orientation {
	case 2:
		gocv.Flip(mat, &out, 1)
	case 3:
		gocv.Rotate(mat, &out, gocv.Rotate180Clockwise)
	case 4:
		gocv.Flip(mat, &out, 0)
	case 5:
		gocv.Transpose(mat, &out)
	case 6:
		gocv.Rotate(mat, &out, gocv.Rotate90Clockwise)
	case 7:
		rotated := gocv.NewMat()
		defer rotated.Close()
		gocv.Rotate(mat, &rotated, gocv.Rotate90Clockwise)
		gocv.Flip(rotated, &out, 0)
	case 8:
		gocv.Rotate(mat, &out, gocv.Rotate90CounterClockwise)
	}
	return out
}

func matFromImage(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("decode: convert image: %w", err)
	}
	return mat, nil
}

// Encode serializes an 8-bit Mat. WebP goes through OpenCV; the other formats
// are written by imaging.
func Encode(img gocv.Mat, opts EncodeOptions) ([]byte, error) {
	if img.Empty() {
		return nil, fmt.Errorf("encode: image is empty")
	}
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	if opts.Format == FormatWEBP {
		buf, err := gocv.IMEncodeWithParams(gocv.FileExt(".webp"), img, []int{int(gocv.IMWriteWebpQuality), quality})
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		defer buf.Close()
		return bytes.Clone(buf.GetBytes()), nil
	}

	var target imaging.Format
	switch opts.Format {
	case FormatPNG:
		target = imaging.PNG
	case FormatBMP:
		target = imaging.BMP
	case FormatTIFF:
		target = imaging.TIFF
	default:
		target = imaging.JPEG
	}

	goImg, err := img.ToImage()
	if err != nil {
		return nil, fmt.Errorf("encode: convert mat: %w", err)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, goImg, target, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", opts.Format, err)
	}
	return out.Bytes(), nil
}
