// Package repository declares the storage contracts used by the service
// layer. internal/repository/sqlite implements all of them on one *sqlite.DB.
package repository

import (
	"context"

	"github.com/sakif/jobboard/internal/model"
)

// ListingFilter narrows ListingRepository.List. Zero values mean "no
// constraint".
type ListingFilter struct {
	ActiveOnly bool
	OwnerID    string
	TagSlug    string
}

type ListingRepository interface {
	// CreateWithTags inserts the listing and attaches every tag in one
	// transaction. Tags are matched by slug and created when missing (their
	// Name is only used on creation); the IDs are written back into tags.
	// Attaching the same tag twice is a no-op.
	CreateWithTags(ctx context.Context, listing *model.Listing, tags []model.Tag) error
	GetBySlug(ctx context.Context, slug string) (*model.Listing, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// List returns listings newest first, each with tags and click count.
	List(ctx context.Context, filter ListingFilter) ([]model.Listing, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type TagRepository interface {
	FindOrCreate(ctx context.Context, tag *model.Tag) error
	GetTagBySlug(ctx context.Context, slug string) (*model.Tag, error)
	ListTags(ctx context.Context) ([]model.Tag, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	SetCustomerID(ctx context.Context, userID, customerID string) error
}

type ClickRepository interface {
	RecordClick(ctx context.Context, click *model.Click) error
	CountClicks(ctx context.Context, listingID string) (int, error)
}
