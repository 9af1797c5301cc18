package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"webpconv/logger"
)

// UploadToGCSWithJSON uploads reader to a Google Cloud Storage object using a
// service account key. credentialsJSON may be raw JSON or base64 of it.
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	if err := requireKeys(accessInfo, "credentialsJSON", "bucket", "object"); err != nil {
		return err
	}
	credentialsJSON, err := serviceAccountJSON(accessInfo["credentialsJSON"])
	if err != nil {
		return err
	}
	bucketName := accessInfo["bucket"]
	objectName := accessInfo["object"]

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = accessInfo["contentType"]

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	// the upload only completes on Close
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return nil
}

func serviceAccountJSON(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "{") {
		return []byte(value), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("credentialsJSON is neither JSON nor base64: %w", err)
	}
	return decoded, nil
}
