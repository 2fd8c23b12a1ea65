package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/repository"
)

// Query holds the index page filters. Empty fields do not filter.
type Query struct {
	Search string // case-insensitive substring of title, company or location
	Tag    string // exact tag slug
}

// Normalize trims both fields, so a blank parameter counts as absent.
func (q Query) Normalize() Query {
	q.Search = strings.TrimSpace(q.Search)
	q.Tag = strings.TrimSpace(q.Tag)
	return q
}

// ListingService serves the read side of the board: search, detail pages
// and the owner dashboard. It never writes.
type ListingService struct {
	listings repository.ListingRepository
	logger   *slog.Logger
}

func NewListingService(listings repository.ListingRepository, logger *slog.Logger) *ListingService {
	return &ListingService{listings: listings, logger: logger}
}

// Search returns the active listings matching q, newest first.
//
// The tag predicate runs in SQL; the text predicate runs in FilterListings
// because SQLite's lower() only folds ASCII.
func (s *ListingService) Search(ctx context.Context, q Query) ([]model.Listing, error) {
	q = q.Normalize()

	listings, err := s.listings.List(ctx, repository.ListingFilter{
		ActiveOnly: true,
		TagSlug:    q.Tag,
	})
	if err != nil {
		return nil, fmt.Errorf("service/listing: searching: %w", err)
	}

	return FilterListings(listings, q), nil
}

// FilterListings keeps the listings that satisfy every non-empty field of q,
// preserving order. The input slice is not modified.
func FilterListings(listings []model.Listing, q Query) []model.Listing {
	q = q.Normalize()
	needle := strings.ToLower(q.Search)

	out := make([]model.Listing, 0, len(listings))
	for i := range listings {
		l := &listings[i]
		if needle != "" && !matchesText(l, needle) {
			continue
		}
		if q.Tag != "" && !l.HasTag(q.Tag) {
			continue
		}
		out = append(out, *l)
	}
	return out
}

func matchesText(l *model.Listing, needle string) bool {
	return strings.Contains(strings.ToLower(l.Title), needle) ||
		strings.Contains(strings.ToLower(l.Company), needle) ||
		strings.Contains(strings.ToLower(l.Location), needle)
}

// GetBySlug returns a listing for its detail page. Inactive listings are
// only shown to their owner; everyone else gets ErrNotFound.
func (s *ListingService) GetBySlug(ctx context.Context, slug, viewerID string) (*model.Listing, error) {
	listing, err := s.listings.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/listing: getting %s: %w", slug, err)
	}

	if !listing.IsActive && (viewerID == "" || viewerID != listing.OwnerID) {
		return nil, apperror.NotFound("listing", slug)
	}
	return listing, nil
}

// Dashboard returns every listing owned by ownerID, active or not, with tags
// and click counts.
func (s *ListingService) Dashboard(ctx context.Context, ownerID string) ([]model.Listing, error) {
	if ownerID == "" {
		return nil, apperror.Unauthorized("not signed in")
	}

	listings, err := s.listings.List(ctx, repository.ListingFilter{OwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("service/listing: dashboard for %s: %w", ownerID, err)
	}
	return listings, nil
}
