package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/JBD-GER/maklernull-sub000/internal/config"
)

// IArchiveStorage writes immutable archive objects.
type IArchiveStorage interface {
	ArchiveObject(ctx context.Context, key string, body []byte, contentType string) error
}

// s3Storage implements IArchiveStorage.
type s3Storage struct {
	bucket   string
	s3Client *s3.Client
}

// NewS3Storage creates the S3-backed archive for cfg.AwsS3Bucket.
func NewS3Storage(ctx context.Context, cfg *config.Config) (IArchiveStorage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx,
		aws_config.WithRegion(cfg.AwsRegion),
		// Static credentials from config; IAM roles apply when both are empty.
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &s3Storage{
		bucket:   cfg.AwsS3Bucket,
		s3Client: s3.NewFromConfig(awsCfg),
	}, nil
}

func (s *s3Storage) ArchiveObject(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put archive object %s: %w", key, err)
	}
	log.Printf("Archived %s to s3://%s", key, s.bucket)
	return nil
}

// loggingStorage stands in for S3 when no bucket is configured.
type loggingStorage struct{}

func NewLoggingStorage() IArchiveStorage {
	return loggingStorage{}
}

func (loggingStorage) ArchiveObject(ctx context.Context, key string, body []byte, contentType string) error {
	log.Printf("--- MOCK ARCHIVE ---\nKey: %s\nType: %s\nSize: %d bytes\n--------------------", key, contentType, len(body))
	return nil
}
