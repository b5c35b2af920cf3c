package workers_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/workers"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

type fakeArchiver struct {
	key   string
	err   error
	calls int
}

func (f *fakeArchiver) Archive(context.Context) (string, error) {
	f.calls++
	return f.key, f.err
}

func TestBackupProcessor_ExportBackup(t *testing.T) {
	ctx := context.Background()

	ok := &fakeArchiver{key: "backups/nebula-backup-2025-01-01.json"}
	processor := workers.NewBackupProcessor(ok, helpers.TestLogger())
	require.NoError(t, processor.ExportBackup(ctx, workers.NewBackupTask()))
	assert.Equal(t, 1, ok.calls)

	failing := &fakeArchiver{err: errors.New("bucket unavailable")}
	processor = workers.NewBackupProcessor(failing, helpers.TestLogger())
	err := processor.ExportBackup(ctx, workers.NewBackupTask())
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestReconcileProcessor_ReconcileLedger(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	for i := 0; i < 5; i++ {
		svc.AddProduct(t, int64(i+1))
	}

	processor := workers.NewReconcileProcessor(svc.Store.Products(), svc.Ledger, svc.Reports, 2, helpers.TestLogger())
	require.NoError(t, processor.ReconcileLedger(ctx, workers.NewReconcileTask()))

	t.Run("drift_is_reported_not_repaired", func(t *testing.T) {
		p := svc.AddProduct(t, 3, func(p *domain.Product) { p.ID = "PROD-drift" })
		require.NoError(t, svc.Store.Products().UpdateStock(ctx, p.ID, 9, 9, time.Now()))

		require.NoError(t, processor.ReconcileLedger(ctx, workers.NewReconcileTask()))

		r, err := svc.Ledger.Reconcile(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, r.Consistent)
		assert.Equal(t, int64(9), svc.Product(t, p.ID).Stock)
	})
}

func TestCleanupProcessor_CleanupTempFiles(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	dir := "/tmp/uploads"
	require.NoError(t, fsys.MkdirAll(dir, 0o755))

	old := time.Now().Add(-48 * time.Hour)
	files := map[string]time.Time{
		workers.UploadPrefix + "old.csv":   old,
		workers.UploadPrefix + "fresh.csv": time.Now(),
		"unrelated.log":                    old,
	}
	for name, mtime := range files {
		path := dir + string(os.PathSeparator) + name
		require.NoError(t, afero.WriteFile(fsys, path, []byte("x"), 0o644))
		require.NoError(t, fsys.Chtimes(path, mtime, mtime))
	}

	processor := workers.NewCleanupProcessor(fsys, dir, 24*time.Hour, nil, helpers.TestLogger())
	require.NoError(t, processor.CleanupTempFiles(ctx, asynq.NewTask(workers.TypeCleanupTempFiles, nil)))

	exists := func(name string) bool {
		ok, err := afero.Exists(fsys, dir+string(os.PathSeparator)+name)
		require.NoError(t, err)
		return ok
	}
	assert.False(t, exists(workers.UploadPrefix+"old.csv"))
	assert.True(t, exists(workers.UploadPrefix+"fresh.csv"))
	assert.True(t, exists("unrelated.log"))

	t.Run("missing_dir_is_not_an_error", func(t *testing.T) {
		p := workers.NewCleanupProcessor(fsys, "/does/not/exist", time.Hour, nil, helpers.TestLogger())
		assert.NoError(t, p.CleanupTempFiles(ctx, asynq.NewTask(workers.TypeCleanupTempFiles, nil)))
	})
}

func TestCleanupProcessor_CleanupCache(t *testing.T) {
	ctx := context.Background()
	r := helpers.SetupTestRedis(t)
	cache := redis_a.NewCache(r.Client, time.Minute, helpers.TestLogger())

	require.NoError(t, cache.Put(ctx, "dashboard:summary", map[string]int{"products": 1}, 0))
	require.NoError(t, cache.Put(ctx, "export:products", []string{"a"}, 0))
	require.NoError(t, cache.Put(ctx, "cart:c1", map[string]string{"id": "c1"}, 0))

	processor := workers.NewCleanupProcessor(afero.NewMemMapFs(), "/tmp", time.Hour, cache, helpers.TestLogger())
	require.NoError(t, processor.CleanupCache(ctx, asynq.NewTask(workers.TypeCleanupCache, nil)))

	assert.False(t, r.Server.Exists("dashboard:summary"))
	assert.False(t, r.Server.Exists("export:products"))
	assert.True(t, r.Server.Exists("cart:c1"), "carts are not derived data")
}

func TestNewServeMux(t *testing.T) {
	ctx := context.Background()
	archiver := &fakeArchiver{key: "backups/x.json"}
	mux := workers.NewServeMux(workers.Processors{
		Backup: workers.NewBackupProcessor(archiver, helpers.TestLogger()),
	}, helpers.TestLogger())

	require.NoError(t, mux.ProcessTask(ctx, workers.NewBackupTask()))
	assert.Equal(t, 1, archiver.calls)

	assert.Error(t, mux.ProcessTask(ctx, workers.NewReconcileTask()), "unregistered type")
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Second, workers.RetryDelay(0, nil, nil))
	assert.Equal(t, 8*time.Second, workers.RetryDelay(3, nil, nil))
	assert.Equal(t, 10*time.Minute, workers.RetryDelay(30, nil, nil))
}
