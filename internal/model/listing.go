// Package model defines the data structures shared by every layer of the
// job board: the persisted entities and the read models built from them.
package model

import "time"

// Listing is a paid job posting.
//
// Slug is derived from the title plus a random numeric suffix when the
// listing is created and never changes afterwards. Content holds sanitised
// HTML rendered from the submitted Markdown. Logo is the basename of the
// stored upload, served under /storage/.
type Listing struct {
	ID            string    `json:"id"            db:"id"`
	OwnerID       string    `json:"ownerId"       db:"owner_id"`
	Title         string    `json:"title"         db:"title"`
	Slug          string    `json:"slug"          db:"slug"`
	Company       string    `json:"company"       db:"company"`
	Location      string    `json:"location"      db:"location"`
	Logo          string    `json:"logo"          db:"logo"`
	ApplyLink     string    `json:"applyLink"     db:"apply_link"`
	Content       string    `json:"content"       db:"content"`
	IsHighlighted bool      `json:"isHighlighted" db:"is_highlighted"`
	IsActive      bool      `json:"isActive"      db:"is_active"`
	ChargeID      string    `json:"-"             db:"charge_id"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`

	// Read-model fields, filled by the repository on list/get queries.
	Tags       []Tag `json:"tags"`
	ClickCount int   `json:"clickCount"`
}

// HasTag reports whether the listing carries a tag with exactly this slug.
func (l *Listing) HasTag(slug string) bool {
	for _, t := range l.Tags {
		if t.Slug == slug {
			return true
		}
	}
	return false
}
