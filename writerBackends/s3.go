package writerbackends

import (
	"context"
	"fmt"
	"io"

	"webpconv/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadToS3WithCreds uploads reader to bucket/key with static credentials.
// An optional "endpoint" targets an S3-compatible service with path-style
// addressing.
func UploadToS3WithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	if err := requireKeys(accessInfo, "accessKey", "secretKey", "region", "bucket", "key"); err != nil {
		return err
	}
	creds := credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], "")
	key := accessInfo["key"]
	bucket := accessInfo["bucket"]

	opts := s3.Options{
		Region:      accessInfo["region"],
		Credentials: creds,
	}
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	s3Client := s3.New(opts)

	uploader := manager.NewUploader(s3Client)

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if ct := accessInfo["contentType"]; ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, bucket, err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, bucket)
	return nil
}
