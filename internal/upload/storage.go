package upload

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// PublicURL is the prefix objects are served under.
	PublicURL string
}

// Storage is the media bucket, accessed with the service credential.
type Storage struct {
	cfg    StorageConfig
	client *minio.Client
}

// NewStorage creates a client for the configured bucket
func NewStorage(cfg StorageConfig) (*Storage, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Storage{cfg: cfg, client: cl}, nil
}

func (s *Storage) Bucket() string { return s.cfg.Bucket }

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// PresignPut returns a URL that accepts a single PUT of key until ttl passes.
func (s *Storage) PresignPut(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	return s.client.PresignedPutObject(ctx, s.cfg.Bucket, key, ttl)
}

// PublicURL is where key can be read once uploaded.
func (s *Storage) PublicURL(key string) string {
	return PublicURL(s.cfg.PublicURL, key)
}

// PublicURL joins base and an object key.
func PublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
