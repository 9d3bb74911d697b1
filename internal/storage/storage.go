package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/metrics"
)

const (
	// Default part size for multipart uploads (16MB)
	DefaultPartSize = 16 * 1024 * 1024

	// Minimum part size for multipart uploads (5MB)
	MinPartSize = 5 * 1024 * 1024

	// Maximum number of concurrent parts
	MaxConcurrentParts = 4

	// Object key prefixes
	DatasetPrefix    = "datasets/"
	TranscriptPrefix = "transcripts/"
	RawPrefix        = "raw/"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket
var ErrObjectNotFound = errors.New("storage: object not found")

// Storage provides object storage operations
type Storage struct {
	client     *minio.Client
	bucketName string
	partSize   int64
	logger     *logging.Logger
}

// New creates a new storage client
func New(cfg config.StorageConfig, logger *logging.Logger) (*Storage, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
		partSize:   DefaultPartSize,
		logger:     logger,
	}, nil
}

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// DatasetKey returns the object key of a container named name
func DatasetKey(name string) string {
	return DatasetPrefix + strings.TrimSuffix(name, filepath.Ext(name)) + ".db"
}

// TranscriptKey returns the object key of the transcript of a container
func TranscriptKey(datasetKey string) string {
	base := strings.TrimPrefix(datasetKey, DatasetPrefix)
	return TranscriptPrefix + strings.TrimSuffix(base, path.Ext(base)) + ".json"
}

// UploadFile uploads a file from local filesystem. Files larger than one part
// go through a parallel multipart upload.
func (s *Storage) UploadFile(ctx context.Context, objectName, filePath string) error {
	start := time.Now()

	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	opts := minio.PutObjectOptions{ContentType: getContentType(filePath)}
	if info.Size() >= s.partSize {
		opts.PartSize = uint64(s.partSize)
		opts.NumThreads = MaxConcurrentParts
	}

	_, err = s.client.FPutObject(ctx, s.bucketName, objectName, filePath, opts)
	s.record("upload", objectName, info.Size(), start, err)
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// DownloadFile downloads an object to filePath. The file only appears once the
// transfer completed.
func (s *Storage) DownloadFile(ctx context.Context, objectName, filePath string) error {
	start := time.Now()

	tmp := filePath + ".part"
	err := s.client.FGetObject(ctx, s.bucketName, objectName, tmp, minio.GetObjectOptions{})
	if err != nil {
		os.Remove(tmp)
		s.record("download", objectName, 0, start, err)
		return fmt.Errorf("failed to download file: %w", wrapNotFound(err))
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move downloaded file: %w", err)
	}

	var size int64
	if info, err := os.Stat(filePath); err == nil {
		size = info.Size()
	}
	s.record("download", objectName, size, start, nil)
	return nil
}

// Stat returns object information without downloading
func (s *Storage) Stat(ctx context.Context, objectName string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to stat object: %w", wrapNotFound(err))
	}

	return &ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// Delete deletes an object from storage
func (s *Storage) Delete(ctx context.Context, objectName string) error {
	start := time.Now()
	err := s.client.RemoveObject(ctx, s.bucketName, objectName, minio.RemoveObjectOptions{})
	s.record("delete", objectName, 0, start, err)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

func (s *Storage) record(operation, key string, size int64, start time.Time, err error) {
	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
		metrics.RecordError("storage", operation)
	}
	metrics.RecordStorageOperation(operation, status, duration.Seconds(), size)
	s.logger.LogStorageOperation(operation, s.bucketName, key, size, duration, err)
}

func wrapNotFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	return err
}

// getContentType returns the content type based on file extension
func getContentType(filePath string) string {
	ext := filepath.Ext(filePath)
	switch ext {
	case ".db":
		return "application/vnd.sqlite3"
	case ".json":
		return "application/json"
	case ".srt":
		return "application/x-subrip"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
