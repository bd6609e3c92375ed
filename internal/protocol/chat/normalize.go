package chat

import "strings"

// Normalize collapses every whitespace run in s to a single space and trims
// both ends. The empty string normalizes to itself. Normalize is idempotent
// and is applied to usernames and message text before validation and before
// transmission.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
