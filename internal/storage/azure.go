package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/sirupsen/logrus"
)

// AzureStorage keeps each partition as a CSV blob in Azure Blob Storage
type AzureStorage struct {
	client        *azblob.Client
	containerName string
}

// Ensure AzureStorage implements Store
var _ Store = (*AzureStorage)(nil)

// NewAzureStorage creates a new Azure Storage client using managed identity
func NewAzureStorage(ctx context.Context, accountName, containerName string) (*AzureStorage, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	storage := &AzureStorage{
		client:        client,
		containerName: containerName,
	}

	if err := storage.ensureContainer(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure container exists: %w", err)
	}

	return storage, nil
}

func (s *AzureStorage) ensureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.containerName, nil)
	if err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return fmt.Errorf("failed to create container: %w", err)
		}
		logrus.Debugf("Container %s already exists", s.containerName)
	} else {
		logrus.Infof("Created container %s", s.containerName)
	}

	return nil
}

// ReadAll downloads the partition blob and parses it as CSV
func (s *AzureStorage) ReadAll(ctx context.Context, partition string) ([][]string, error) {
	table, _, err := s.download(ctx, partition)
	return table, err
}

// AppendRows rewrites the partition blob with rows appended. The upload is conditional on the
// ETag seen at download time so a concurrent writer makes this call fail instead of losing rows.
func (s *AzureStorage) AppendRows(ctx context.Context, partition string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	table, etag, err := s.download(ctx, partition)
	if err != nil {
		return err
	}

	data, err := EncodeCSV(append(table, rows...))
	if err != nil {
		return fmt.Errorf("failed to encode partition %s: %w", partition, err)
	}

	opts := &azblob.UploadBufferOptions{
		BlockSize:   int64(1024 * 1024),
		Concurrency: 3,
	}
	if etag != nil {
		opts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfMatch: etag},
		}
	}

	if _, err := s.client.UploadBuffer(ctx, s.containerName, blobName(partition), data, opts); err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", blobName(partition), err)
	}

	logrus.Infof("Appended %d rows to %s in Azure Blob Storage", len(rows), blobName(partition))
	return nil
}

// EnsurePartition uploads a header-only blob when the partition does not exist yet
func (s *AzureStorage) EnsurePartition(ctx context.Context, partition string, header []string) error {
	_, _, err := s.download(ctx, partition)
	if err == nil {
		return nil
	}
	if err != ErrPartitionNotFound {
		return err
	}

	data, err := EncodeCSV([][]string{header})
	if err != nil {
		return err
	}

	_, err = s.client.UploadBuffer(ctx, s.containerName, blobName(partition), data, &azblob.UploadBufferOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: toPtr(azcore.ETagAny)},
		},
	})
	if err != nil && !bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
		return fmt.Errorf("failed to create partition %s: %w", partition, err)
	}

	logrus.Infof("Created partition %s with %d header columns", partition, len(header))
	return nil
}

func (s *AzureStorage) download(ctx context.Context, partition string) ([][]string, *azcore.ETag, error) {
	response, err := s.client.DownloadStream(ctx, s.containerName, blobName(partition), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, nil, ErrPartitionNotFound
		}
		return nil, nil, fmt.Errorf("failed to download blob %s: %w", blobName(partition), err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read blob content: %w", err)
	}

	table, err := DecodeCSV(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse blob %s: %w", blobName(partition), err)
	}

	return table, response.ETag, nil
}

func blobName(partition string) string {
	return strings.TrimSpace(partition) + ".csv"
}

func toPtr[T any](v T) *T {
	return &v
}

// EncodeCSV serializes a table
func EncodeCSV(table [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCSV parses a table, allowing ragged rows
func DecodeCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	return r.ReadAll()
}
