// Package matcher resolves a note's source link to a domain rule.
package matcher

import (
	"net/url"
	"strings"

	"github.com/starford/imagesorter/internal/models"
)

// NormalizeDomain returns the lower-cased hostname of link without a leading
// "www.". Links without a scheme are read as http URLs. It returns "" when
// link is empty or cannot be parsed.
func NormalizeDomain(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	// "medium.com:443/x" parses as scheme "medium.com" with opaque "443/x".
	if u.Host == "" && (u.Scheme == "" || startsWithPort(u.Opaque)) {
		if strings.HasPrefix(link, "/") {
			return ""
		}
		u, err = url.Parse("http://" + link)
		if err != nil {
			return ""
		}
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// startsWithPort reports whether opaque begins with a port number followed
// by a path or nothing.
func startsWithPort(opaque string) bool {
	digits, _, _ := strings.Cut(opaque, "/")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Match returns the first rule whose domain equals domain or is a parent
// domain of it. Rules with an empty domain never match.
func Match(domain string, rules models.RuleSet) (models.Rule, bool) {
	if domain == "" {
		return models.Rule{}, false
	}
	for _, r := range rules {
		if r.Domain == "" {
			continue
		}
		if domain == r.Domain || strings.HasSuffix(domain, "."+r.Domain) {
			return r, true
		}
	}
	return models.Rule{}, false
}

// Resolve normalizes link and matches it in one step.
func Resolve(link string, rules models.RuleSet) (models.Rule, bool) {
	return Match(NormalizeDomain(link), rules)
}
