// Package images reads precomputed photo feature vectors from object storage.
package images

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/talaqi/talaqi/internal/logger"
)

// featureSuffix names the object the extraction pipeline writes next to each photo.
const featureSuffix = ".features.json"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Store serves feature vectors for report photos kept in one bucket.
type Store struct {
	mc     *minio.Client
	bucket string
}

func NewClient(cfg Config) (*Store, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "report-images"
	}

	return &Store{mc: mc, bucket: bucket}, nil
}

// Init creates the bucket if it doesn't exist
func (s *Store) Init(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}

	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
		logger.Info("bucket created", "bucket", s.bucket)
	}

	return nil
}

// Features returns the feature vector stored for imageRef.
func (s *Store) Features(ctx context.Context, imageRef string) ([]float32, error) {
	key, err := featureKey(imageRef)
	if err != nil {
		return nil, err
	}

	obj, err := s.mc.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", s.bucket, key, err)
	}

	return decodeFeatures(data)
}

// PutFeatures stores a feature vector for imageRef. The extraction pipeline
// normally does this; the CLI uses it for seeding.
func (s *Store) PutFeatures(ctx context.Context, imageRef string, vector []float32) error {
	key, err := featureKey(imageRef)
	if err != nil {
		return err
	}

	data, err := json.Marshal(featureFile{Vector: vector})
	if err != nil {
		return err
	}

	_, err = s.mc.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.bucket, key, err)
	}

	logger.Debug("features uploaded", "bucket", s.bucket, "key", key, "dims", len(vector))
	return nil
}

// Healthy checks if MinIO is reachable
func (s *Store) Healthy(ctx context.Context) bool {
	_, err := s.mc.BucketExists(ctx, s.bucket)
	return err == nil
}

type featureFile struct {
	Vector []float32 `json:"vector"`
}

func featureKey(imageRef string) (string, error) {
	ref := strings.TrimPrefix(strings.TrimSpace(imageRef), "/")
	if ref == "" {
		return "", errors.New("empty image reference")
	}
	return ref + featureSuffix, nil
}

func decodeFeatures(data []byte) ([]float32, error) {
	var f featureFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}

	if len(f.Vector) == 0 {
		return nil, errors.New("feature file has no vector")
	}

	return f.Vector, nil
}
