package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/sirupsen/logrus"
)

// AzureStore implements Store on an Azure Blob Storage container. Relative
// paths map directly to blob names.
type AzureStore struct {
	client    *azblob.Client
	container string
	log       logrus.FieldLogger
}

func NewAzureStore(connectionString, container string, log logrus.FieldLogger) (*AzureStore, error) {
	if connectionString == "" || container == "" {
		return nil, fmt.Errorf("azure store: connection string and container are required")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure store: create client: %w", err)
	}
	log = log.WithFields(logrus.Fields{"component": "media.azure", "container": container})
	log.Info("initialized azure blob storage")
	return &AzureStore{client: client, container: container, log: log}, nil
}

func blobName(parts ...string) (string, error) {
	name := path.Clean(path.Join(parts...))
	if name == "." || strings.HasPrefix(name, "../") || name == ".." || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid blob path '%s'", path.Join(parts...))
	}
	return name, nil
}

func (s *AzureStore) Save(ctx context.Context, assetType AssetType, relativeDirHint string, filename string, data io.Reader) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("invalid filename '%s'", filename)
	}
	name, err := blobName(string(assetType), relativeDirHint, filename)
	if err != nil {
		return "", err
	}

	contentType := "application/octet-stream"
	if f, err := FormatForPath(filename); err == nil {
		contentType = f.ContentType()
	}
	_, err = s.client.UploadStream(ctx, s.container, name, data, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("azure store: upload %s: %w", name, err)
	}
	s.log.WithField("blob", name).Debug("uploaded asset")
	return name, nil
}

func (s *AzureStore) Get(ctx context.Context, relativePath string) (io.ReadCloser, *ObjectInfo, error) {
	name, err := blobName(relativePath)
	if err != nil {
		return nil, nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, relativePath)
		}
		return nil, nil, fmt.Errorf("azure store: download %s: %w", name, err)
	}

	info := &ObjectInfo{}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	if resp.LastModified != nil {
		info.ModTime = *resp.LastModified
	}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	return resp.Body, info, nil
}

func (s *AzureStore) Delete(ctx context.Context, relativePath string) error {
	name, err := blobName(relativePath)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteBlob(ctx, s.container, name, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("azure store: delete %s: %w", name, err)
	}
	return nil
}
