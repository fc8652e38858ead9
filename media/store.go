package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Store.Get for missing assets.
var ErrNotFound = errors.New("asset not found")

// Store saves, retrieves and deletes media assets by relative path.
type Store interface {
	// Save writes data under assetType/relativeDirHint/filename and returns
	// the relative path it was stored at.
	Save(ctx context.Context, assetType AssetType, relativeDirHint string, filename string, data io.Reader) (string, error)
	Get(ctx context.Context, relativePath string) (io.ReadCloser, *ObjectInfo, error)
	Delete(ctx context.Context, relativePath string) error
}

// LocalStorage implements Store on the local filesystem.
type LocalStorage struct {
	basePath        string
	resolvedPathMap map[AssetType]string
	log             logrus.FieldLogger
}

// NewLocalStorage creates basePath if needed. subDirs maps asset types to
// subdirectories; "." stores that type directly in basePath.
func NewLocalStorage(basePath string, subDirs map[AssetType]string, log logrus.FieldLogger) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}
	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolved := make(map[AssetType]string)
	for assetType, subDir := range subDirs {
		fullPath := filepath.Join(absBasePath, subDir)
		if !within(absBasePath, fullPath) {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		resolved[assetType] = fullPath
	}

	log = log.WithField("component", "media.store")
	log.WithField("path", absBasePath).Info("initialized local storage")
	return &LocalStorage{basePath: absBasePath, resolvedPathMap: resolved, log: log}, nil
}

func within(base, path string) bool {
	clean := filepath.Clean(path)
	return clean == base || strings.HasPrefix(clean, base+string(filepath.Separator))
}

func (ls *LocalStorage) assetTypeDir(assetType AssetType) (string, error) {
	if dir, ok := ls.resolvedPathMap[assetType]; ok {
		return dir, nil
	}
	dir := filepath.Join(ls.basePath, string(assetType))
	if !within(ls.basePath, dir) {
		return "", fmt.Errorf("asset type '%s' resolves outside base path", assetType)
	}
	return dir, nil
}

// EnsureDir creates the directory for the asset type if it doesn't exist
func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dir, err := ls.assetTypeDir(assetType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dir, err)
	}
	return dir, nil
}

func (ls *LocalStorage) Save(ctx context.Context, assetType AssetType, relativeDirHint string, filename string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid filename '%s'", filename)
	}

	targetDir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}
	if relativeDirHint != "" {
		hinted := filepath.Join(targetDir, relativeDirHint)
		if !within(targetDir, hinted) {
			return "", fmt.Errorf("invalid relative directory hint '%s'", relativeDirHint)
		}
		if err := os.MkdirAll(hinted, 0755); err != nil {
			return "", fmt.Errorf("failed to create sub-directory '%s': %w", hinted, err)
		}
		targetDir = hinted
	}

	fullSavePath := filepath.Join(targetDir, filename)
	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}
	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to close '%s': %w", fullSavePath, err)
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}
	ls.log.WithField("path", fullSavePath).Debug("saved asset")
	return filepath.ToSlash(relativePath), nil
}

func (ls *LocalStorage) Get(ctx context.Context, relativePath string) (io.ReadCloser, *ObjectInfo, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, relativePath)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", relativePath, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", relativePath, err)
	}
	if stat.IsDir() {
		file.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, relativePath)
	}

	return file, &ObjectInfo{
		Size:        stat.Size(),
		ModTime:     stat.ModTime(),
		ContentType: mime.TypeByExtension(filepath.Ext(fullPath)),
	}, nil
}

// Delete removes an asset file. Missing files are not an error.
func (ls *LocalStorage) Delete(ctx context.Context, relativePath string) error {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	return nil
}

// GetFullPath resolves a relative asset path and rejects traversal outside
// the storage root.
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	fullPath := filepath.Join(ls.basePath, filepath.Clean("/"+relativePath))
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}
	if !within(ls.basePath, absFullPath) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}
	return absFullPath, nil
}
