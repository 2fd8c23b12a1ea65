package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/repository"
)

var _ repository.ListingRepository = (*DB)(nil)

// listingSelect is shared by GetBySlug and List. The click count comes from
// a correlated subquery so the dashboard needs no extra round trips.
const listingSelect = `
	SELECT l.id, l.owner_id, l.title, l.slug, l.company, l.location, l.logo,
	       l.apply_link, l.content, l.is_highlighted, l.is_active, l.charge_id,
	       l.created_at, l.updated_at,
	       (SELECT COUNT(*) FROM clicks c WHERE c.listing_id = l.id)
	FROM listings l`

// CreateWithTags inserts the listing and its tag associations atomically.
//
// Tags are resolved by slug inside the same transaction, so a listing is
// never visible without its tags and a failed insert leaves no orphan tags
// behind. A slug collision with an existing listing is reported as
// apperror.ErrConflict so the caller can retry with a fresh suffix.
func (db *DB) CreateWithTags(ctx context.Context, listing *model.Listing, tags []model.Tag) (err error) {
	now := time.Now().UTC()
	listing.ID = xid.New().String()
	listing.CreatedAt = now
	listing.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning listing transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO listings (id, owner_id, title, slug, company, location, logo,
		                       apply_link, content, is_highlighted, is_active, charge_id,
		                       created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		listing.ID,
		listing.OwnerID,
		listing.Title,
		listing.Slug,
		listing.Company,
		listing.Location,
		listing.Logo,
		listing.ApplyLink,
		listing.Content,
		listing.IsHighlighted,
		listing.IsActive,
		listing.ChargeID,
		listing.CreatedAt,
		listing.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("listing", listing.Slug)
		}
		return fmt.Errorf("sqlite: inserting listing %s: %w", listing.Slug, err)
	}

	attached := make([]model.Tag, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for i := range tags {
		if err = findOrCreateTag(ctx, tx, &tags[i]); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO listing_tags (listing_id, tag_id) VALUES (?, ?)`,
			listing.ID, tags[i].ID,
		); err != nil {
			return fmt.Errorf("sqlite: attaching tag %s to listing %s: %w", tags[i].Slug, listing.ID, err)
		}
		if !seen[tags[i].ID] {
			seen[tags[i].ID] = true
			attached = append(attached, tags[i])
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing listing %s: %w", listing.Slug, err)
	}

	listing.Tags = attached
	return nil
}

// GetBySlug returns the listing with its tags and click count, active or not.
func (db *DB) GetBySlug(ctx context.Context, slug string) (*model.Listing, error) {
	row := db.conn.QueryRowContext(ctx, listingSelect+` WHERE l.slug = ?`, slug)

	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("listing", slug)
		}
		return nil, fmt.Errorf("sqlite: getting listing %s: %w", slug, err)
	}

	listings := []model.Listing{*l}
	if err := db.attachTags(ctx, listings); err != nil {
		return nil, err
	}
	return &listings[0], nil
}

// SlugExists reports whether any listing already uses slug.
func (db *DB) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE slug = ?)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking slug %s: %w", slug, err)
	}
	return exists, nil
}

// List returns the listings matching filter, newest first. The tag
// predicate is an exact slug match evaluated in SQL.
func (db *DB) List(ctx context.Context, filter repository.ListingFilter) ([]model.Listing, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActiveOnly {
		where = append(where, `l.is_active = 1`)
	}
	if filter.OwnerID != "" {
		where = append(where, `l.owner_id = ?`)
		args = append(args, filter.OwnerID)
	}
	if filter.TagSlug != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM listing_tags lt JOIN tags t ON t.id = lt.tag_id
			WHERE lt.listing_id = l.id AND t.slug = ?)`)
		args = append(args, filter.TagSlug)
	}

	query := listingSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY l.created_at DESC, l.rowid DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing listings: %w", err)
	}

	listings := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning listing row: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating listings: %w", err)
	}
	// Close before attachTags: the pool has a single connection.
	rows.Close()

	if err := db.attachTags(ctx, listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// SetActive flips the listing's visibility. Deactivation is an admin
// action outside the web surface; tests use it to build inactive fixtures.
func (db *DB) SetActive(ctx context.Context, id string, active bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE listings SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating listing %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("listing", id)
	}
	return nil
}

// attachTags loads the tags of every listing in one query and fills
// listings[i].Tags in place, ordered by tag name.
func (db *DB) attachTags(ctx context.Context, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	index := make(map[string]int, len(listings))
	placeholders := make([]string, len(listings))
	args := make([]any, len(listings))
	for i := range listings {
		index[listings[i].ID] = i
		placeholders[i] = "?"
		args[i] = listings[i].ID
		listings[i].Tags = []model.Tag{}
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT lt.listing_id, t.id, t.name, t.slug
		 FROM listing_tags lt JOIN tags t ON t.id = lt.tag_id
		 WHERE lt.listing_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY t.name COLLATE NOCASE, t.slug`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading listing tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			listingID string
			t         model.Tag
		)
		if err := rows.Scan(&listingID, &t.ID, &t.Name, &t.Slug); err != nil {
			return fmt.Errorf("sqlite: scanning listing tag row: %w", err)
		}
		i := index[listingID]
		listings[i].Tags = append(listings[i].Tags, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating listing tags: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var l model.Listing
	err := row.Scan(
		&l.ID,
		&l.OwnerID,
		&l.Title,
		&l.Slug,
		&l.Company,
		&l.Location,
		&l.Logo,
		&l.ApplyLink,
		&l.Content,
		&l.IsHighlighted,
		&l.IsActive,
		&l.ChargeID,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.ClickCount,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
