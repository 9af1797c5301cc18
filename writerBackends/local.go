package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"webpconv/logger"
)

// UploadToLocal copies reader into baseDir/folder/filename. The data goes to
// a temporary name first and is renamed into place once synced, so readers of
// the target directory never see a partial file.
func UploadToLocal(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	if err := requireKeys(accessInfo, "baseDir", "filename"); err != nil {
		return err
	}
	baseDir := accessInfo["baseDir"]
	folder := accessInfo["folder"]
	filename := accessInfo["filename"]

	fullDir := filepath.Join(baseDir, folder)
	fullPath := filepath.Join(fullDir, filename)

	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(fullDir, "."+filename+".*")
	if err != nil {
		return fmt.Errorf("failed to create file in %s: %w", fullDir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync file %s: %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file %s: %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move file into %s: %w", fullPath, err)
	}

	logger.Infof("Successfully saved file '%s' to '%s'", filename, fullPath)
	return nil
}
