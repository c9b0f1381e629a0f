package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearHistory removes invocation rows. A positive olderThan keeps the rows
// newer than that age; zero removes everything. It returns the rows deleted.
func ClearHistory(ctx context.Context, pool *pgxpool.Pool, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		slog.Info(fmt.Sprintf("%s - Clearing all invocation history", clearLogPrefix))
		tag, err := pool.Exec(ctx, `DELETE FROM invocations`)
		if err != nil {
			return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
		}
		return tag.RowsAffected(), nil
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	slog.Info(fmt.Sprintf("%s - Clearing invocation history before %s", clearLogPrefix, cutoff.Format(time.RFC3339)))
	tag, err := pool.Exec(ctx, `DELETE FROM invocations WHERE created < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
	}
	return tag.RowsAffected(), nil
}
