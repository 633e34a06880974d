// Package storage writes attachment blobs under the upload directory. The
// database keeps metadata only; a row whose file has gone missing is pruned
// by the attachment handlers on read.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const dirPerm = 0o755

func UploadDir() string {
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		return dir
	}
	return "uploads"
}

// Save streams the blob to disk under a generated unique name that keeps the
// original extension, and returns the stored path.
func Save(r io.Reader, originalName string) (string, error) {
	dir := UploadDir()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + filepath.Ext(originalName)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close file: %w", err)
	}

	return path, nil
}

// Exists reports whether the stored file is still on disk.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Remove deletes the stored file. A file already gone is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
