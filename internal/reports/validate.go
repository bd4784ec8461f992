package reports

import "unicode"

// MaxDataPoints is the upper bound callers must enforce on graph resolution.
// The engine itself does not clamp; handlers reject anything larger.
const MaxDataPoints = 100

// IsValidID reports whether s is safe to splice into SQL text. Only
// alphanumerics plus '-', '_', '.' and ':' are allowed. The check runs on
// every entity id regardless of origin - identifiers from trusted internal
// callers go through it too.
func IsValidID(s string) bool {
	for _, c := range s {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-' && c != '_' && c != '.' && c != ':' {
			return false
		}
	}
	return true
}
