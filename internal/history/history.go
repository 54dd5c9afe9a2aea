package history

import (
	"context"

	"github.com/loykin/watchdog/internal/store"
)

// Sink mirrors crash entries to an external destination, in addition to the
// JSON history file which remains the source of truth. Implementations must
// be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e store.CrashEntry) error
	Clear(ctx context.Context) error
	Close() error
}
