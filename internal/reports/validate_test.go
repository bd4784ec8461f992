package reports_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vantage/internal/reports"
)

func TestIsValidID(t *testing.T) {
	testCases := []struct {
		name  string
		id    string
		valid bool
	}{
		{name: "simple alphanumeric", id: "blog2024", valid: true},
		{name: "hyphen and underscore", id: "my-site_prod", valid: true},
		{name: "dots and colons", id: "app.example:web", valid: true},
		{name: "unicode letters", id: "blogé", valid: true},
		{name: "empty string passes the character check", id: "", valid: true},
		{name: "whitespace", id: "my site", valid: false},
		{name: "slash", id: "a/b", valid: false},
		{name: "quote", id: "site'", valid: false},
		{name: "sql injection attempt", id: "'; DROP TABLE events; --", valid: false},
		{name: "percent", id: "100%", valid: false},
		{name: "semicolon", id: "a;b", valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, reports.IsValidID(tc.id), "id %q", tc.id)
		})
	}
}
