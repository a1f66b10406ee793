package tenant

import "strings"

// NormalizeDomain collapses the protocol, www, trailing-slash, and case
// variants of a storefront domain into one canonical key. It is idempotent;
// every store lookup and write must go through it.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	d = strings.TrimSuffix(d, "/")
	return d
}
