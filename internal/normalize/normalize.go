package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// freeDomains are public webmail providers. Records on these domains never
// participate in domain matching; a shared @gmail.com says nothing about a
// shared business.
var freeDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"outlook.com": {},
	"aol.com":     {},
}

// Email lower-cases and trims an email address. ok=false when the value is
// blank or has no @.
func Email(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || !strings.Contains(s, "@") {
		return "", false
	}
	return s, true
}

// Name produces the canonical form of a display name used as an index key:
// lower-cased, diacritics stripped, whitespace collapsed. Matching on the
// result is still exact: no edit distance, no phonetics.
func Name(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	s = stripDiacritics(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Domain extracts the lower-cased domain part of an email address. ok=false
// for malformed addresses or free webmail domains.
func Domain(email string) (string, bool) {
	email, ok := Email(email)
	if !ok {
		return "", false
	}
	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if domain == "" {
		return "", false
	}
	if IsFreeDomain(domain) {
		return "", false
	}
	return domain, true
}

// IsFreeDomain reports whether the domain belongs to a public webmail
// provider.
func IsFreeDomain(domain string) bool {
	_, ok := freeDomains[strings.ToLower(domain)]
	return ok
}

// stripDiacritics decomposes to NFD and drops combining marks, so "José"
// and "Jose" index to the same key.
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
