package usecase

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// writeScratch stores the upload under dir with an exclusive create so two
// requests can never share a file.
func writeScratch(dir, name string, src io.Reader) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		removeScratch(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		removeScratch(path)
		return "", err
	}
	return path, nil
}

// removeScratch deletes path if it still exists.
func removeScratch(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
