package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/repository"
)

var _ repository.TagRepository = (*DB)(nil)

// querier is the subset of *sql.DB and *sql.Tx the tag helpers need, so the
// same find-or-create code runs standalone and inside CreateWithTags.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// FindOrCreate resolves tag by its Slug. An existing row wins: its ID and
// Name are copied into tag and the submitted Name is ignored. Otherwise a
// new row is inserted with the submitted Name.
func (db *DB) FindOrCreate(ctx context.Context, tag *model.Tag) error {
	return findOrCreateTag(ctx, db.conn, tag)
}

func findOrCreateTag(ctx context.Context, q querier, tag *model.Tag) error {
	if tag.Slug == "" {
		return apperror.ValidationFailed("tags", "tag slug must not be empty")
	}

	// INSERT OR IGNORE keeps the first spelling and makes concurrent
	// creators of the same slug converge on one row.
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (id, name, slug) VALUES (?, ?, ?)`,
		xid.New().String(), tag.Name, tag.Slug,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting tag %s: %w", tag.Slug, err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT id, name FROM tags WHERE slug = ?`, tag.Slug,
	).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return fmt.Errorf("sqlite: loading tag %s: %w", tag.Slug, err)
	}
	return nil
}

// GetTagBySlug returns apperror.ErrNotFound for an unknown slug.
func (db *DB) GetTagBySlug(ctx context.Context, slug string) (*model.Tag, error) {
	var t model.Tag
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, slug FROM tags WHERE slug = ?`, slug,
	).Scan(&t.ID, &t.Name, &t.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("tag", slug)
		}
		return nil, fmt.Errorf("sqlite: getting tag %s: %w", slug, err)
	}
	return &t, nil
}

// ListTags returns every tag ordered by name, for the index page filter.
func (db *DB) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, slug FROM tags ORDER BY name COLLATE NOCASE, slug`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, nil
}
