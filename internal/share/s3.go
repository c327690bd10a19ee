// Package share uploads recordings to S3-compatible storage and hands out
// presigned download links.
package share

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/audiolibrelab/micmagic/internal/config"
	"github.com/audiolibrelab/micmagic/internal/memo"
)

const defaultExpiry = 15 * time.Minute

var contentTypes = map[string]string{
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3 implements memo.Sharer.
type S3 struct {
	uploader  uploader
	presigner presigner
	bucket    string
	prefix    string
	expiry    time.Duration
	logger    *slog.Logger
}

var _ memo.Sharer = (*S3)(nil)

// NewS3 creates a sharer from config. Static credentials are used when set,
// otherwise the default AWS credential chain.
func NewS3(ctx context.Context, cfg config.ShareConfig, logger *slog.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("share.bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
		logger.Debug("S3 client using configured credentials", "region", cfg.Region, "bucket", cfg.Bucket)
	} else {
		logger.Debug("S3 client using default credential chain", "region", cfg.Region, "bucket", cfg.Bucket)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	up := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	return newS3(up, s3.NewPresignClient(client), cfg, logger), nil
}

func newS3(up uploader, ps presigner, cfg config.ShareConfig, logger *slog.Logger) *S3 {
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3{uploader: up, presigner: ps, bucket: cfg.Bucket, prefix: cfg.Prefix, expiry: expiry, logger: logger}
}

// ObjectKey returns the object key for a recording file: {prefix}/{file}.
func ObjectKey(prefix, audioRef string) string {
	return path.Join(prefix, filepath.Base(audioRef))
}

// ContentType returns the MIME type for an audio file extension.
func ContentType(audioRef string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(audioRef))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Share uploads the file at audioRef and returns a presigned GET URL.
func (s *S3) Share(ctx context.Context, audioRef string) (string, error) {
	f, err := os.Open(audioRef)
	if err != nil {
		return "", fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	key := ObjectKey(s.prefix, audioRef)
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(audioRef)),
	}); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	s.logger.Info("Shared recording", "audio_ref", audioRef, "bucket", s.bucket, "key", key)
	return req.URL, nil
}
