package model

// Tag labels listings. Slug is the identity: two spellings that slugify to
// the same value are the same tag, and Name keeps the spelling of whoever
// created it first.
type Tag struct {
	ID   string `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}
