package catalog

import "strings"

// NormalizeTitle is the comparison form used when a product has no course
// reference and has to be matched to a course by name.
func NormalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NormalizeCurrency upper-cases an ISO currency code.
func NormalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
