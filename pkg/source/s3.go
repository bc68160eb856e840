package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"orthoview/pkg/volerr"
)

// S3Config holds the connection settings of an S3-compatible object store.
type S3Config struct {
	// Endpoint is the server address (e.g., "localhost:9000").
	Endpoint string

	// Bucket holds the volume objects.
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL enables HTTPS.
	UseSSL bool

	// Prefix is prepended to every object key.
	Prefix string

	// Client is an optional pre-configured client. When set, Endpoint and
	// the keys are ignored.
	Client *minio.Client
}

func (c *S3Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when client is not provided")
	}
	return nil
}

// S3 serves volumes from an S3-compatible bucket.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3 connects to the bucket described by cfg.
func NewS3(cfg S3Config) (*S3, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// OpenWhole implements Source.
func (s *S3) OpenWhole(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.get(ctx, id)
}

// OpenSlice implements Source.
func (s *S3) OpenSlice(ctx context.Context, id string, pair AxisPair, index int) (io.ReadCloser, error) {
	return s.get(ctx, SliceKey(id, pair, index))
}

func (s *S3) key(name string) string {
	name = strings.TrimPrefix(name, "/")
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *S3) get(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.key(name)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, volerr.Transport(err, key)
	}
	// GetObject is lazy; Stat surfaces a missing key before any read
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, volerr.Transport(err, key)
	}
	return decompressed(obj, name)
}
