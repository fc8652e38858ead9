package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"
)

// EnhancedPrefix is prepended to input filenames when writing batch outputs.
const EnhancedPrefix = "enhanced_"

var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsRasterImage checks if the filename has a supported raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// EnhancedName returns the output filename used for an enhanced copy of input.
func EnhancedName(input string) string {
	return EnhancedPrefix + filepath.Base(input)
}

// ListImages returns the supported images directly inside dir in natural order
// (img2 before img10). Subdirectories are not descended into.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if IsRasterImage(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	natsort.Sort(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}
