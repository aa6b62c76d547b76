// Package postgres implements a VersionedStore backed by PostgreSQL, for
// deployments that keep the registry document next to the rest of their
// infrastructure instead of a hosted git content API.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DocumentStore keeps each versioned document as one row keyed by path. The
// row's version counter is the optimistic-concurrency token.
type DocumentStore struct {
	exec    pgExecutor
	path    string
	builder squirrel.StatementBuilderType
}

// NewDocumentStore constructs a store bound to one document path.
func NewDocumentStore(exec pgExecutor, path string) *DocumentStore {
	return &DocumentStore{
		exec:    exec,
		path:    path,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the document payload and its version token.
func (s *DocumentStore) Get(ctx context.Context) ([]byte, string, error) {
	query := s.builder.Select("payload", "version").
		From("gate.documents").
		Where(squirrel.Eq{"path": s.path})

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, "", fmt.Errorf("build select: %w", err)
	}

	var payload []byte
	var version int64
	if err := s.exec.QueryRow(ctx, sql, args...).Scan(&payload, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", repository.ErrNotFound
		}
		return nil, "", fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}

	return payload, strconv.FormatInt(version, 10), nil
}

// Put writes the payload when expectedVersion matches the stored counter. An
// empty expectedVersion creates the row; a duplicate create or stale counter
// surfaces as ErrVersionConflict.
func (s *DocumentStore) Put(ctx context.Context, payload []byte, expectedVersion string) (string, error) {
	if expectedVersion == "" {
		return s.create(ctx, payload)
	}

	expected, err := strconv.ParseInt(expectedVersion, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: version token %q", repository.ErrMalformed, expectedVersion)
	}

	query := s.builder.Update("gate.documents").
		Set("payload", payload).
		Set("version", expected+1).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"path": s.path, "version": expected})

	sql, args, err := query.ToSql()
	if err != nil {
		return "", fmt.Errorf("build update: %w", err)
	}

	tag, err := s.exec.Exec(ctx, sql, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return "", repository.ErrVersionConflict
	}

	return strconv.FormatInt(expected+1, 10), nil
}

func (s *DocumentStore) create(ctx context.Context, payload []byte) (string, error) {
	query := s.builder.Insert("gate.documents").
		Columns("path", "payload", "version", "updated_at").
		Values(s.path, payload, 1, squirrel.Expr("now()")).
		Suffix("ON CONFLICT (path) DO NOTHING")

	sql, args, err := query.ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}

	tag, err := s.exec.Exec(ctx, sql, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		// Someone else created the document first.
		return "", repository.ErrVersionConflict
	}

	return "1", nil
}
