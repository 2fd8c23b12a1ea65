package service

import (
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Limits enforced by form validation.
const (
	MaxLogoBytes      = 2048 * 1024
	MinPasswordLength = 5
	maxFieldLength    = 255
)

// label turns a form field name into the words used in messages:
// "apply_link" becomes "apply link".
func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func requiredMessage(field string) string {
	return "The " + label(field) + " field is required."
}

// validEmail accepts a bare address only; "Name <a@b.c>" is rejected.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email, "@")
}

// validApplyLink accepts absolute http and https URLs. Other schemes are
// refused because the apply endpoint redirects visitors to this value.
func validApplyLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func tooLong(s string) bool {
	return utf8.RuneCountInString(s) > maxFieldLength
}
