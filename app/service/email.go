package service

import "strings"

// CanonicalizeEmail is the form used for uniqueness and lookups: trimmed and
// lower-cased. Local parts are not otherwise rewritten.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
