package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadService hands out presigned S3 URLs for profile background images.
// Clients upload directly to S3; the shim never proxies file bytes.
type UploadService struct {
	client *s3.Client
	bucket string
}

// NewUploadService creates the service from a loaded AWS config.
func NewUploadService(cfg aws.Config, bucket string) *UploadService {
	return &UploadService{client: s3.NewFromConfig(cfg), bucket: bucket}
}

// BackgroundUploadURL returns a presigned PUT URL and the object key the
// client should store on its profile afterwards.
func (s *UploadService) BackgroundUploadURL(ctx context.Context, fileName, contentType string) (string, string, error) {
	key := "profile-backgrounds/" + time.Now().Format("20060102150405") + "-" + fileName
	presigner := s3.NewPresignClient(s.client)
	presigned, err := presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(5*time.Minute))
	if err != nil {
		return "", "", fmt.Errorf("presign upload: %w", err)
	}
	return presigned.URL, key, nil
}

// BackgroundReadURL returns a presigned GET URL for a stored background key.
func (s *UploadService) BackgroundReadURL(ctx context.Context, key string) (string, error) {
	presigner := s3.NewPresignClient(s.client)
	presigned, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(5*time.Minute))
	if err != nil {
		return "", fmt.Errorf("presign read: %w", err)
	}
	return presigned.URL, nil
}
