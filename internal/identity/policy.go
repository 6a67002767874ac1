package identity

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DomainPolicy decides whether a dotted, lower-cased label is host.domain. On
// a match Split returns the host part (everything before the first dot).
type DomainPolicy interface {
	Split(label string) (host string, ok bool)
}

// DefaultPrivateSuffixes are suffixes common on internal networks that the
// public suffix list does not know about
var DefaultPrivateSuffixes = []string{"local", "lan", "corp", "internal", "home.arpa", "localdomain"}

// SuffixPolicy splits labels ending in one of a configured set of domains
type SuffixPolicy struct {
	suffixes []string
}

// NewSuffixPolicy creates a SuffixPolicy. Suffixes are matched case-insensitively
// and may be given with or without a leading dot.
func NewSuffixPolicy(suffixes ...string) *SuffixPolicy {
	p := &SuffixPolicy{}
	for _, s := range suffixes {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if s != "" {
			p.suffixes = append(p.suffixes, s)
		}
	}
	return p
}

// Split implements DomainPolicy
func (p *SuffixPolicy) Split(label string) (string, bool) {
	for _, s := range p.suffixes {
		if strings.HasSuffix(label, "."+s) {
			return firstLabel(label), true
		}
	}
	return "", false
}

// PublicSuffixPolicy splits labels whose suffix is an ICANN-managed public
// suffix, e.g. "sw1.example.com" or "sw1.example.co.uk". Private-registry
// entries and the implicit "*" rule do not count, so "sw1.floor2" is left
// alone.
type PublicSuffixPolicy struct{}

// Split implements DomainPolicy
func (PublicSuffixPolicy) Split(label string) (string, bool) {
	suffix, icann := publicsuffix.PublicSuffix(label)
	if !icann || suffix == label {
		return "", false
	}
	return firstLabel(label), true
}

func firstLabel(label string) string {
	host, _, _ := strings.Cut(label, ".")
	return host
}
