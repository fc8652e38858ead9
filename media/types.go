// media/types.go
package media

import "time"

type AssetType string

const (
	AssetTypeEnhanced AssetType = "enhanced"
	AssetTypeOriginal AssetType = "original"
	AssetTypeUnknown  AssetType = "unknown"
)

// Format is an output image encoding.
type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWEBP Format = "webp"
)

// EncodeOptions controls how an enhanced image is written.
type EncodeOptions struct {
	Format  Format
	Quality int // JPEG/WebP quality 1-100, 0 uses the default
}

// ObjectInfo describes a stored asset.
type ObjectInfo struct {
	Size        int64
	ModTime     time.Time
	ContentType string
}
