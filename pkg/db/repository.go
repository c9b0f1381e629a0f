package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/provider-invoker/pkg/events"
)

const (
	repoLogPrefix       = "db:repository"
	defaultListLimit    = 50
	maxListLimit        = 1000
	invocationSelectSQL = `SELECT id::text, service, method, endpoint, command, result, error, ok, duration_ms, created FROM invocations`
)

// Repository provides database access for invocation history.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordInvocation inserts one history row for event.
func (r *Repository) RecordInvocation(ctx context.Context, event *events.InvocationEvent) error {
	inv, err := invocationFromEvent(event)
	if err != nil {
		return err
	}
	slog.Debug(fmt.Sprintf("%s - RecordInvocation id=%s %s.%s", repoLogPrefix, inv.ID, inv.Service, inv.Method))

	_, err = r.pool.Exec(ctx,
		`INSERT INTO invocations (id, service, method, endpoint, command, result, error, ok, duration_ms, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		inv.ID, inv.Service, inv.Method, inv.Endpoint, inv.Command, inv.Result, inv.Error, inv.Ok, inv.DurationMs, inv.Created)
	if err != nil {
		return fmt.Errorf("%s - failed to insert invocation %s: %w", repoLogPrefix, inv.ID, err)
	}
	return nil
}

// ListInvocations returns the most recent invocations, newest first.
func (r *Repository) ListInvocations(ctx context.Context, params ListInvocationsParams) ([]Invocation, error) {
	query, args := buildListQuery(params)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list invocations: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - failed to read invocations: %w", repoLogPrefix, err)
	}
	return out, nil
}

// GetInvocation finds one invocation by ID. A missing row or an id that is
// not a UUID returns (nil, nil).
func (r *Repository) GetInvocation(ctx context.Context, id string) (*Invocation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, invocationSelectSQL+` WHERE id = $1`, id)
	inv, err := scanInvocation(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inv, err
}

func buildListQuery(params ListInvocationsParams) (string, []any) {
	var where []string
	var args []any
	if params.Service != "" {
		args = append(args, params.Service)
		where = append(where, fmt.Sprintf("service = $%d", len(args)))
	}
	if params.Method != "" {
		args = append(args, params.Method)
		where = append(where, fmt.Sprintf("method = $%d", len(args)))
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)

	query := invocationSelectSQL
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created DESC LIMIT $%d", len(args))
	return query, args
}

func scanInvocation(row pgx.Row) (*Invocation, error) {
	var inv Invocation
	err := row.Scan(&inv.ID, &inv.Service, &inv.Method, &inv.Endpoint, &inv.Command,
		&inv.Result, &inv.Error, &inv.Ok, &inv.DurationMs, &inv.Created)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan invocation: %w", repoLogPrefix, err)
	}
	return &inv, nil
}

// invocationFromEvent maps an event onto a row. A missing or malformed ID
// gets a fresh one; a malformed timestamp falls back to now.
func invocationFromEvent(event *events.InvocationEvent) (*Invocation, error) {
	if event == nil {
		return nil, fmt.Errorf("%s - nil invocation event", repoLogPrefix)
	}

	id := event.ID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	created, err := time.Parse(time.RFC3339, event.Timestamp)
	if err != nil {
		created = time.Now().UTC()
	}

	inv := &Invocation{
		ID:         id,
		Service:    event.Service,
		Method:     event.Method,
		Endpoint:   event.Endpoint,
		Command:    event.Command,
		Result:     event.Result,
		Ok:         event.Ok,
		DurationMs: event.DurationMs,
		Created:    created,
	}
	if event.Error != "" {
		msg := event.Error
		inv.Error = &msg
	}
	return inv, nil
}
