package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/repository"
)

var _ repository.ClickRepository = (*DB)(nil)

// RecordClick appends a click. The log is append-only: there is no update
// or delete, and repeated visits from one client are all kept.
func (db *DB) RecordClick(ctx context.Context, click *model.Click) error {
	click.ID = xid.New().String()
	click.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO clicks (id, listing_id, user_agent, ip, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		click.ID,
		click.ListingID,
		click.UserAgent,
		click.IP,
		click.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording click for listing %s: %w", click.ListingID, err)
	}
	return nil
}

// CountClicks returns how many clicks a listing has received.
func (db *DB) CountClicks(ctx context.Context, listingID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clicks WHERE listing_id = ?`, listingID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting clicks for listing %s: %w", listingID, err)
	}
	return n, nil
}
