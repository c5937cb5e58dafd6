package storage

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioConfig holds object storage settings for signatures
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	Prefix     string
	PresignTTL time.Duration
}

// NewMinioClient creates a MinIO client for the configured endpoint
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
}

// MinioSignatureStore keeps signature images in a bucket and hands out presigned URLs
type MinioSignatureStore struct {
	client     *minio.Client
	bucket     string
	region     string
	prefix     string
	presignTTL time.Duration
	logger     *zap.Logger
}

// NewMinioSignatureStore creates a bucket-backed signature store
func NewMinioSignatureStore(client *minio.Client, cfg MinioConfig, logger *zap.Logger) *MinioSignatureStore {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MinioSignatureStore{
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		presignTTL: ttl,
		logger:     logger,
	}
}

// EnsureBucket creates the signature bucket when it does not exist yet
func (s *MinioSignatureStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("Created signature bucket", zap.String("bucket", s.bucket))
	return nil
}

// Lookup returns the object key of the identity's signature, or "" when none is stored
func (s *MinioSignatureStore) Lookup(ctx context.Context, identityID string) (string, error) {
	key, err := s.objectKey(identityID)
	if err != nil {
		return "", err
	}

	_, err = s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", nil
		}
		s.logger.Error("Failed to stat signature object",
			zap.String("bucket", s.bucket),
			zap.String("key", key),
			zap.Error(err))
		return "", fmt.Errorf("stat signature: %w", err)
	}

	return key, nil
}

// URL presigns a GET for the stored signature
func (s *MinioSignatureStore) URL(ctx context.Context, ref string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ref, s.presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign signature: %w", err)
	}
	return u.String(), nil
}

// Save uploads the identity's signature image
func (s *MinioSignatureStore) Save(ctx context.Context, identityID string, content []byte) (string, error) {
	key, err := s.objectKey(identityID)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		s.logger.Error("Failed to upload signature",
			zap.String("bucket", s.bucket),
			zap.String("key", key),
			zap.Error(err))
		return "", fmt.Errorf("upload signature: %w", err)
	}

	return key, nil
}

// PresignTTL returns how long issued URLs stay valid
func (s *MinioSignatureStore) PresignTTL() time.Duration {
	return s.presignTTL
}

func (s *MinioSignatureStore) objectKey(identityID string) (string, error) {
	ref, err := signatureRef(identityID)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return ref, nil
	}
	return s.prefix + "/" + ref, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
