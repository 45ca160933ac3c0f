package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// FileFragmentRepository stores fragments as files below a root directory.
// It stands in for a block server on a single machine.
type FileFragmentRepository struct {
	root string
}

// NewFileFragmentRepository creates the root directory if needed.
func NewFileFragmentRepository(root string) (*FileFragmentRepository, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating fragment directory %s: %w", root, err)
	}
	return &FileFragmentRepository{root: root}, nil
}

func (r *FileFragmentRepository) path(key string) string {
	return filepath.Join(r.root, filepath.FromSlash(key))
}

// Upload writes the fragment atomically via a temporary file.
func (r *FileFragmentRepository) Upload(ctx context.Context, key string, reader io.Reader, quiet bool) (string, error) {
	target := r.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	return target, nil
}

// Download opens the fragment file.
func (r *FileFragmentRepository) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(r.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", zerrors.ErrFragmentNotFound, key)
	}
	return f, err
}

// Delete removes the fragment file. Missing files are not an error.
func (r *FileFragmentRepository) Delete(ctx context.Context, key string) error {
	if err := os.Remove(r.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DeletePrefix removes the directory holding a chunk's fragments.
func (r *FileFragmentRepository) DeletePrefix(ctx context.Context, prefix string) error {
	return os.RemoveAll(r.path(prefix))
}

// GetBucketName returns the root directory.
func (r *FileFragmentRepository) GetBucketName() string {
	return r.root
}

// GetStorageType returns the storage type.
func (r *FileFragmentRepository) GetStorageType() string {
	return string(FileType)
}
