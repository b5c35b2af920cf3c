// internal/core/ports/collaborators.go
package ports

import (
	"context"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// FiscalSigner produces the fiscal signature printed on counter invoices. The
// result is opaque and used verbatim.
type FiscalSigner interface {
	GenerateSignature(ctx context.Context, amount decimal.Decimal, timestamp time.Time, referenceID string) (string, error)
}

// BlobStorage stores backup documents and uploaded files.
type BlobStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// TaskEnqueuer submits background jobs. *asynq.Client satisfies it.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
