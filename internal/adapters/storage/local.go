// internal/adapters/storage/local.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// ErrNotFound is returned by Download for a missing key.
var ErrNotFound = errors.New("blob not found")

// LocalStorage keeps blobs as files under a base directory. It backs
// single-node deployments and tests.
type LocalStorage struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
}

var _ ports.BlobStorage = (*LocalStorage)(nil)

// NewLocalStorage stores blobs under basePath on the OS filesystem.
func NewLocalStorage(basePath string, logger *slog.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return NewLocalStorageFs(afero.NewBasePathFs(afero.NewOsFs(), basePath), basePath, logger), nil
}

// NewLocalStorageFs stores blobs on fs. root is only used to build locations.
func NewLocalStorageFs(fs afero.Fs, root string, logger *slog.Logger) *LocalStorage {
	return &LocalStorage{
		fs:     fs,
		root:   root,
		logger: logger.With(slog.String("storage", "local")),
	}
}

// cleanKey maps a key to a slash path that cannot leave the root.
func cleanKey(key string) (string, error) {
	p := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	if p == "/" {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return p, nil
}

func (l *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	p, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := l.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to create dir for %s: %w", key, err)
	}

	tmp := p + ".partial"
	f, err := l.fs.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", key, err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = l.fs.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := l.fs.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("failed to commit %s: %w", key, err)
	}

	l.logger.InfoContext(ctx, "file stored",
		slog.String("key", key),
		slog.Int64("bytes", n))

	return filepath.Join(l.root, filepath.FromSlash(p)), nil
}

func (l *LocalStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (l *LocalStorage) Delete(_ context.Context, key string) error {
	p, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := l.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns the sorted keys starting with prefix.
func (l *LocalStorage) List(_ context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := afero.Walk(l.fs, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, ".partial") {
			return nil
		}
		key := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	p, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(l.fs, p)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return ok, nil
}
