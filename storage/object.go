package storage

import (
	"context"
	"fmt"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"lessonkb/config"
)

// ObjectStore uploads accepted keyframe images to S3-compatible object
// storage under their deterministic keys.
type ObjectStore struct {
	client *miniogo.Client
	bucket string
	log    *zap.Logger
}

func NewObjectStore(cfg *config.Config, log *zap.Logger) (*ObjectStore, error) {
	client, err := miniogo.New(cfg.MinIOEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &ObjectStore{client: client, bucket: cfg.MinIOBucket, log: log}, nil
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *ObjectStore) Upload(ctx context.Context, localPath, key string) error {
	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, miniogo.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.log.Debug("frame uploaded", zap.String("key", key), zap.Int64("size", info.Size))
	return nil
}
