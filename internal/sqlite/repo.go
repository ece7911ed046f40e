// Package sqlite is the on-device key-value table backing the secure store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/confsync/internal/conference"
)

const kvTable = "kv"

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// Get reads a value, [conference.ErrNotFound] if the key was never set.
func (r Repo) Get(ctx context.Context, key string) (string, error) {
	query, args, err := sq.Select("value").From(kvTable).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", fmt.Errorf("error constructing sql: %s", err)
	}

	var value string
	err = r.db.GetContext(ctx, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", conference.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error fetching key %q: %s", key, err)
	}

	return value, nil
}

// Set writes a value, replacing whatever was under the key.
func (r Repo) Set(ctx context.Context, key, value string) error {
	query, args, err := sq.Insert(kvTable).
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP").
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error setting key %q: %s", key, err)
	}

	return nil
}

func (r Repo) Delete(ctx context.Context, key string) error {
	query, args, err := sq.Delete(kvTable).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error deleting key %q: %s", key, err)
	}

	return nil
}
