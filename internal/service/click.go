package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/metrics"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/repository"
)

// ClickInfo describes the visitor following an apply link.
type ClickInfo struct {
	UserAgent string
	IP        string
}

// ClickTracker records apply-link visits. Every call appends a row; there
// is no deduplication.
type ClickTracker struct {
	listings repository.ListingRepository
	clicks   repository.ClickRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewClickTracker(
	listings repository.ListingRepository,
	clicks repository.ClickRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ClickTracker {
	return &ClickTracker{listings: listings, clicks: clicks, metrics: m, logger: logger}
}

// Track records one click on the listing with the given slug and returns
// the listing so the caller can redirect to its apply link.
func (t *ClickTracker) Track(ctx context.Context, slug string, info ClickInfo) (*model.Listing, error) {
	listing, err := t.listings.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/click: loading %s: %w", slug, err)
	}

	click := &model.Click{
		ListingID: listing.ID,
		UserAgent: info.UserAgent,
		IP:        info.IP,
	}
	if err := t.clicks.RecordClick(ctx, click); err != nil {
		return nil, fmt.Errorf("service/click: recording click on %s: %w", slug, err)
	}

	t.metrics.ApplyClicked()
	t.logger.Debug("apply click recorded",
		slog.String("listingID", listing.ID),
		slog.String("clickID", click.ID),
	)
	return listing, nil
}
