package contract

import "regexp"

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// ValidAccountID reports whether id is a well formed account identifier:
// lowercase alphanumeric parts joined by single '-', '_' or '.' separators.
func ValidAccountID(id string) bool {
	if len(id) < minAccountIDLen || len(id) > maxAccountIDLen {
		return false
	}
	return accountIDPattern.MatchString(id)
}
