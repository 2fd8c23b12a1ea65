package model

import "time"

// Click records one visit to a listing's apply link.
type Click struct {
	ID        string    `json:"id"        db:"id"`
	ListingID string    `json:"listingId" db:"listing_id"`
	UserAgent string    `json:"userAgent" db:"user_agent"`
	IP        string    `json:"ip"        db:"ip"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
