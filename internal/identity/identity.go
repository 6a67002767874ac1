// Package identity turns the names devices advertise into stable crawl keys.
//
// A device can be observed under several labels: "core-sw1", "CORE-SW1.corp.example.com",
// "core-sw1(FOC1917U0GD)". Normalize maps all of them to "core-sw1". Splitting a
// dotted label is a heuristic, so the decision is delegated to a chain of
// DomainPolicy values; a label no policy recognizes keeps its dots.
package identity

import (
	"net/netip"
	"regexp"
	"strings"
)

var (
	// "(Serial: FOC1234X0AB)", "(SN FOC1234X0AB)", "(S/N# FOC1234X0AB)"
	taggedSerial = regexp.MustCompile(`(?i)\s*\(\s*(?:serial(?:\s*(?:no\.?|number))?\s*[:#]?|s/?n\s*[:#]|s/?n\s)\s*[a-z0-9-]+\s*\)\s*$`)

	// "core-sw1 Serial: FOC1234X0AB"
	trailingSerial = regexp.MustCompile(`(?i)\s+(?:serial(?:\s*(?:no\.?|number))?|s/?n)\s*[:#]\s*[a-z0-9-]+\s*$`)

	// "spine-1(FDO21120U8R)": a bare parenthetical chassis serial
	bareSerial = regexp.MustCompile(`\s*\(\s*([A-Za-z0-9]{8,})\s*\)\s*$`)
)

// Normalizer canonicalizes raw labels. The zero value strips serial tags and
// lower-cases but never splits a domain.
type Normalizer struct {
	policies []DomainPolicy
}

// New creates a Normalizer that consults policies in order
func New(policies ...DomainPolicy) *Normalizer {
	return &Normalizer{policies: policies}
}

// Default returns a Normalizer using the built-in private suffixes followed by
// the ICANN public suffix list
func Default() *Normalizer {
	return New(NewSuffixPolicy(DefaultPrivateSuffixes...), PublicSuffixPolicy{})
}

// Normalize returns the crawl key for a raw label. It is idempotent:
// Normalize(Normalize(x)) == Normalize(x). A pass removes at most one serial
// annotation or domain and its other steps are idempotent, so the loop always
// reaches a fixpoint.
func (n *Normalizer) Normalize(raw string) string {
	key := raw
	for {
		next := n.pass(key)
		if next == key {
			return key
		}
		key = next
	}
}

func (n *Normalizer) pass(label string) string {
	label = strings.TrimSpace(label)
	label = stripSerial(label)
	label = strings.TrimRight(strings.ToLower(label), ".")

	if addr, err := netip.ParseAddr(label); err == nil {
		return addr.String()
	}

	if host, ok := n.splitDomain(label); ok {
		label = host
	}
	return strings.TrimSpace(label)
}

func (n *Normalizer) splitDomain(label string) (string, bool) {
	if !strings.Contains(label, ".") {
		return "", false
	}
	for _, p := range n.policies {
		if host, ok := p.Split(label); ok && host != "" {
			return host, true
		}
	}
	return "", false
}

// Key derives the key for a device seen with rawLabel and, optionally, a
// management address. The label wins; the address is the fallback for
// neighbors that advertise no usable name.
func (n *Normalizer) Key(rawLabel, address string) string {
	if key := n.Normalize(rawLabel); key != "" {
		return key
	}
	return n.Normalize(address)
}

// IsAddress reports whether key is an IP literal
func IsAddress(key string) bool {
	_, err := netip.ParseAddr(key)
	return err == nil
}

func stripSerial(label string) string {
	if loc := taggedSerial.FindStringIndex(label); loc != nil && loc[0] > 0 {
		return label[:loc[0]]
	}
	if loc := trailingSerial.FindStringIndex(label); loc != nil && loc[0] > 0 {
		return label[:loc[0]]
	}
	if m := bareSerial.FindStringSubmatchIndex(label); m != nil && m[0] > 0 {
		if looksLikeSerial(label[m[2]:m[3]]) {
			return label[:m[0]]
		}
	}
	return label
}

// looksLikeSerial requires both letters and digits so that "(primary)" or
// "(20240101)" are left alone
func looksLikeSerial(s string) bool {
	var letters, digits bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letters = true
		}
	}
	return letters && digits
}
