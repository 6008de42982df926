package obs

import (
	"strings"

	"jwtpizza.org/internal/ids"
)

// CanonicalPath collapses entity ids in a raw URL path so unmatched requests do not
// explode label cardinality.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSuffix(raw, "/")
	if raw == "" {
		return "/"
	}
	parts := strings.Split(raw, "/")
	for i, p := range parts {
		if ids.Valid(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
