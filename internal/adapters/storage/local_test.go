package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/adapters/storage"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("upload_download_delete", func(t *testing.T) {
		s := storage.NewLocalStorageFs(afero.NewMemMapFs(), "/data", helpers.TestLogger())

		loc, err := s.Upload(ctx, "backups/2025-01-01.json", strings.NewReader(`{"products":[]}`), "application/json")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/data", "backups", "2025-01-01.json"), loc)

		ok, err := s.Exists(ctx, "backups/2025-01-01.json")
		require.NoError(t, err)
		assert.True(t, ok)

		rc, err := s.Download(ctx, "backups/2025-01-01.json")
		require.NoError(t, err)
		assert.Equal(t, `{"products":[]}`, readAll(t, rc))

		require.NoError(t, s.Delete(ctx, "backups/2025-01-01.json"))
		require.NoError(t, s.Delete(ctx, "backups/2025-01-01.json"), "deleting twice is fine")

		ok, err = s.Exists(ctx, "backups/2025-01-01.json")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing_key_is_not_found", func(t *testing.T) {
		s := storage.NewLocalStorageFs(afero.NewMemMapFs(), "/data", helpers.TestLogger())

		_, err := s.Download(ctx, "imports/none.csv")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("list_by_prefix_sorted", func(t *testing.T) {
		s := storage.NewLocalStorageFs(afero.NewMemMapFs(), "/data", helpers.TestLogger())
		for _, key := range []string{"backups/b.json", "imports/p.csv", "backups/a.json"} {
			_, err := s.Upload(ctx, key, strings.NewReader("x"), "")
			require.NoError(t, err)
		}

		keys, err := s.List(ctx, "backups/")
		require.NoError(t, err)
		assert.Equal(t, []string{"backups/a.json", "backups/b.json"}, keys)

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("keys_cannot_escape_root", func(t *testing.T) {
		s := storage.NewLocalStorageFs(afero.NewMemMapFs(), "/data", helpers.TestLogger())

		_, err := s.Upload(ctx, "../../etc/passwd", strings.NewReader("x"), "")
		require.NoError(t, err)
		keys, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"etc/passwd"}, keys)

		_, err = s.Upload(ctx, "..", strings.NewReader("x"), "")
		assert.Error(t, err)
	})

	t.Run("os_backed", func(t *testing.T) {
		dir := t.TempDir()
		s, err := storage.NewLocalStorage(dir, helpers.TestLogger())
		require.NoError(t, err)

		_, err = s.Upload(ctx, "imports/products.csv", strings.NewReader("name,sku\n"), "text/csv")
		require.NoError(t, err)

		b, err := os.ReadFile(filepath.Join(dir, "imports", "products.csv"))
		require.NoError(t, err)
		assert.Equal(t, "name,sku\n", string(b))
	})
}
