package domain

import (
	"strings"
	"time"
)

type Company struct {
	ID        int64
	Key       string
	Name      string
	CreatedAt time.Time
}

// NormalizeCompanyKey trims, collapses inner whitespace and lower-cases a key.
func NormalizeCompanyKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// CompanyNameFromKey derives a display name from a board slug:
// "hello-world" -> "Hello World".
func CompanyNameFromKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '-' || r == '_' })
	for i, p := range parts {
		rs := []rune(p)
		if len(rs) == 0 {
			continue
		}
		parts[i] = strings.ToUpper(string(rs[0])) + string(rs[1:])
	}
	return strings.Join(parts, " ")
}
