package writerbackends

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"webpconv/logger"
)

// UploadToMinio uploads reader to a MinIO (or other S3 API) server.
// accessInfo needs endpoint, accessKey, secretKey, bucket and key; useSSL
// ("true"/"false"), region and size are optional.
func UploadToMinio(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	if err := requireKeys(accessInfo, "endpoint", "accessKey", "secretKey", "bucket", "key"); err != nil {
		return err
	}
	secure, _ := strconv.ParseBool(accessInfo["useSSL"])

	client, err := minio.New(accessInfo["endpoint"], &minio.Options{
		Creds:  miniocreds.NewStaticV4(accessInfo["accessKey"], accessInfo["secretKey"], ""),
		Secure: secure,
		Region: accessInfo["region"],
	})
	if err != nil {
		return fmt.Errorf("minio connection: %w", err)
	}

	size := int64(-1)
	if s, err := strconv.ParseInt(accessInfo["size"], 10, 64); err == nil {
		size = s
	}
	bucket, key := accessInfo["bucket"], accessInfo["key"]
	info, err := client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: accessInfo["contentType"],
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s in bucket %s: %w", key, bucket, err)
	}

	logger.Infof("Successfully uploaded object '%s' (%d bytes) to MinIO bucket '%s'", key, info.Size, bucket)
	return nil
}
