package courier

import "regexp"

var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether addr is a syntactically valid email address.
// Display names are not accepted; addr must be the bare address.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}
