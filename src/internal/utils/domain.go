package utils

import "strings"

// NormalizeDomain lowercases a domain name and strips the trailing root dot
// carried by DNS question names.
func NormalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(domain), ".")
}

// MatchDomain reports whether sourceDomain equals matchesDomain or is one of
// its subdomains, and how many labels of matchesDomain matched:
//
//	MatchDomain("some.sub.domain.com", "domain.com") // true, 2
//	MatchDomain("otherdomain.com", "domain.com")     // false, 0
func MatchDomain(sourceDomain, matchesDomain string) (matches bool, specificity uint8) {
	sourceDomain = NormalizeDomain(sourceDomain)
	matchesDomain = NormalizeDomain(matchesDomain)
	if matchesDomain == "" {
		return false, 0
	}

	if sourceDomain != matchesDomain && !strings.HasSuffix(sourceDomain, "."+matchesDomain) {
		return false, 0
	}
	return true, uint8(strings.Count(matchesDomain, ".") + 1)
}
