package snapshot

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBucket is a Bucket backed by Azure Blob Storage.
type AzureBucket struct {
	client *azblob.Client

	mu      sync.Mutex
	created map[string]bool
}

// NewAzureBucket connects using a storage account connection string.
func NewAzureBucket(connectionString string) (*AzureBucket, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &AzureBucket{client: client, created: make(map[string]bool)}, nil
}

// List returns every blob in container. A missing container is empty.
func (b *AzureBucket) List(ctx context.Context, container string) ([]BlobInfo, error) {
	var out []BlobInfo
	pager := b.client.NewListBlobsFlatPager(container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			info := BlobInfo{Name: *item.Name}
			if p := item.Properties; p != nil {
				if p.LastModified != nil {
					info.LastModified = *p.LastModified
				}
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Stat returns the properties of one blob.
func (b *AzureBucket) Stat(ctx context.Context, container, name string) (BlobInfo, error) {
	props, err := b.client.ServiceClient().NewContainerClient(container).NewBlobClient(name).GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return BlobInfo{}, ErrBlobNotFound
	}
	if err != nil {
		return BlobInfo{}, err
	}
	info := BlobInfo{Name: name}
	if props.LastModified != nil {
		info.LastModified = *props.LastModified
	}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	return info, nil
}

// Download reads a whole blob.
func (b *AzureBucket) Download(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Upload replaces a blob, creating the container on first use.
func (b *AzureBucket) Upload(ctx context.Context, container, name string, data []byte, contentType string) error {
	if err := b.ensureContainer(ctx, container); err != nil {
		return err
	}
	_, err := b.client.UploadBuffer(ctx, container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	return err
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (b *AzureBucket) Delete(ctx context.Context, container, name string) error {
	_, err := b.client.DeleteBlob(ctx, container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return err
}

func (b *AzureBucket) ensureContainer(ctx context.Context, container string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created[container] {
		return nil
	}
	_, err := b.client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %s: %w", container, err)
	}
	b.created[container] = true
	return nil
}
