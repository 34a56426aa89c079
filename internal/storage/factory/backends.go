package factory

import (
	"context"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/storage/memory"
	"github.com/plotsync/plotsync/internal/storage/sqlite"
)

func init() {
	RegisterBackend(BackendSQLite, func(ctx context.Context, path string) (storage.Gateway, error) {
		return sqlite.New(ctx, path)
	})
	RegisterBackend(BackendMemory, func(context.Context, string) (storage.Gateway, error) {
		return memory.New(), nil
	})
}
