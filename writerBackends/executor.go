package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Backends lists the accepted publish target types.
var Backends = []string{"local", "s3", "minio", "gcs", "sftp"}

// WriteImage streams reader to the backend named by backendType. accessInfo
// carries the backend's credentials plus the per-file keys set by
// PrepareAccessInfo.
func WriteImage(ctx context.Context, accessInfo map[string]string, reader io.Reader, backendType string) error {
	switch backendType {
	case "local":
		if err := UploadToLocal(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to write to local directory: %w", err)
		}
	case "s3":
		if err := UploadToS3WithCreds(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to S3: %w", err)
		}
	case "minio":
		if err := UploadToMinio(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to MinIO: %w", err)
		}
	case "gcs":
		if err := UploadToGCSWithJSON(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to GCS: %w", err)
		}
	case "sftp":
		if err := UploadToSFTPWithCreds(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to SFTP: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend type: %s", backendType)
	}
	return nil
}

// IsBackend reports whether name is a supported backend type.
func IsBackend(name string) bool {
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}

// PrepareAccessInfo merges stored credentials with the keys that locate one
// file on the target: filename and content type for every backend, the
// object key for bucket stores and the remote path for SFTP. Credentials may
// set "prefix" (bucket stores) or "remoteDir" (SFTP) to place files.
func PrepareAccessInfo(backendType string, creds map[string]string, filename string) map[string]string {
	accessInfo := make(map[string]string, len(creds)+4)
	for k, v := range creds {
		accessInfo[k] = v
	}
	accessInfo["filename"] = filename
	accessInfo["contentType"] = contentType(filename)

	switch backendType {
	case "s3", "minio":
		accessInfo["key"] = path.Join(creds["prefix"], filename)
	case "gcs":
		accessInfo["object"] = path.Join(creds["prefix"], filename)
	case "sftp":
		accessInfo["remotePath"] = path.Join(creds["remoteDir"], filename)
	}
	return accessInfo
}

// PublishFile uploads the file at localPath to the backend.
func PublishFile(ctx context.Context, backendType string, creds map[string]string, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer file.Close()

	accessInfo := PrepareAccessInfo(backendType, creds, filepath.Base(localPath))
	if stat, err := file.Stat(); err == nil {
		accessInfo["size"] = fmt.Sprint(stat.Size())
	}
	return WriteImage(ctx, accessInfo, file, backendType)
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".gif":
		return "image/gif"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func requireKeys(accessInfo map[string]string, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if accessInfo[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required accessInfo keys: %s", strings.Join(missing, ", "))
	}
	return nil
}
