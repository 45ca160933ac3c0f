// Package objectstore provides fragment storage repository implementations and factory.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FragmentRepository defines the interface a fragment server exposes
type FragmentRepository interface {
	Upload(ctx context.Context, key string, r io.Reader, quiet bool) (string, error)
	Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	GetBucketName() string
	GetStorageType() string
}

// RepositoryType represents the type of fragment storage
type RepositoryType string

const (
	S3Type     RepositoryType = "s3"
	GCSType    RepositoryType = "gcs"
	HTTPType   RepositoryType = "http"
	FileType   RepositoryType = "file"
	MemoryType RepositoryType = "mem"
)

// BucketConfig holds the location of one fragment server
type BucketConfig struct {
	Name string // bucket name, base URL or directory depending on Type
	Type RepositoryType
}

// FragmentKey is the storage key of fragment index within a chunk.
func FragmentKey(chunkID string, index int) string {
	return fmt.Sprintf("%s/block%02d.bin", chunkID, index)
}

// ObjectRepositoryFactory creates fragment repository instances
type ObjectRepositoryFactory struct {
	awsConfig  aws.Config
	gcsClient  *storage.Client
	httpClient *http.Client
}

// NewObjectRepositoryFactory creates a new factory. gcsClient may be nil when
// no GCS server is configured.
func NewObjectRepositoryFactory(awsConfig aws.Config, gcsClient *storage.Client) *ObjectRepositoryFactory {
	return &ObjectRepositoryFactory{
		awsConfig:  awsConfig,
		gcsClient:  gcsClient,
		httpClient: &http.Client{},
	}
}

// CreateRepository creates a repository based on bucket configuration
func (f *ObjectRepositoryFactory) CreateRepository(config BucketConfig) (FragmentRepository, error) {
	switch config.Type {
	case S3Type:
		client := s3.NewFromConfig(f.awsConfig)
		repo := NewS3ObjectRepository(client, config.Name)
		return &repo, nil
	case GCSType:
		if f.gcsClient == nil {
			return nil, fmt.Errorf("GCS client not configured")
		}
		repo := NewGCSObjectRepository(f.gcsClient, config.Name)
		return &repo, nil
	case HTTPType:
		return NewHTTPFragmentRepository(f.httpClient, config.Name), nil
	case FileType:
		return NewFileFragmentRepository(config.Name)
	case MemoryType:
		return NewMemoryFragmentRepository(config.Name), nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", config.Type)
	}
}

// ParseBucketConfig parses a fragment server location.
// Formats: "s3://bucket-name", "gs://bucket-name", "http(s)://host:port/path",
// "file:///var/lib/fragments", "mem://name", "s3:bucket-name", or "bucket-name" (defaults to S3)
func ParseBucketConfig(bucketStr string) (BucketConfig, error) {
	bucketStr = strings.TrimSpace(bucketStr)

	// Handle URI format (s3://, gs://, http://, file://, mem://)
	if strings.Contains(bucketStr, "://") {
		parts := strings.SplitN(bucketStr, "://", 2)
		if len(parts) != 2 {
			return BucketConfig{}, fmt.Errorf("invalid URI format: %s", bucketStr)
		}

		scheme := strings.ToLower(strings.TrimSpace(parts[0]))
		location := strings.TrimSpace(parts[1])

		if location == "" {
			return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
		}

		switch scheme {
		case "s3":
			return BucketConfig{Name: location, Type: S3Type}, nil
		case "gs":
			return BucketConfig{Name: location, Type: GCSType}, nil
		case "http", "https":
			// HTTP servers keep the full base URL
			return BucketConfig{Name: scheme + "://" + strings.TrimRight(location, "/"), Type: HTTPType}, nil
		case "file":
			return BucketConfig{Name: location, Type: FileType}, nil
		case "mem":
			return BucketConfig{Name: location, Type: MemoryType}, nil
		default:
			return BucketConfig{}, fmt.Errorf("unsupported scheme: %s", scheme)
		}
	}

	// Handle colon format (s3:bucket-name)
	parts := strings.SplitN(bucketStr, ":", 2)
	if len(parts) != 2 {
		// Default to S3 for backward compatibility
		return BucketConfig{
			Name: bucketStr,
			Type: S3Type,
		}, nil
	}

	repoType := RepositoryType(strings.ToLower(strings.TrimSpace(parts[0])))
	bucketName := strings.TrimSpace(parts[1])

	if bucketName == "" {
		return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
	}

	return BucketConfig{
		Name: bucketName,
		Type: repoType,
	}, nil
}
