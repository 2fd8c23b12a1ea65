package model

import "time"

// User is an account that owns listings.
//
// Accounts come from self-registration or are provisioned inline when an
// anonymous visitor publishes a listing. CustomerID is the payment
// gateway's reference for the account; it is empty until the account has
// been registered with the gateway.
type User struct {
	ID           string    `json:"id"         db:"id"`
	Name         string    `json:"name"       db:"name"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	CustomerID   string    `json:"-"          db:"customer_id"`
	CreatedAt    time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"  db:"updated_at"`
}
