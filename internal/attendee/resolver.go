// Package attendee maps the names a model extracted onto addresses that
// already appear in the source message's To and Cc headers.
package attendee

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"mail2cal/internal/models"
)

// Policy decides what happens to a name no header address matches.
type Policy string

const (
	// PolicyKeep forwards the literal name as a placeholder attendee.
	PolicyKeep Policy = "keep"
	// PolicyDrop removes the name.
	PolicyDrop Policy = "drop"
)

// ParsePolicy parses "keep" or "drop".
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyKeep, PolicyDrop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown attendee policy %q (want keep or drop)", s)
	}
}

// searchHeaders are scanned in this order.
var searchHeaders = []string{"To", "Cc"}

// namedAddress matches `Display Name <user@host>` inside a header value. A
// quoted display name may contain commas and semicolons.
var namedAddress = regexp.MustCompile(`(?:"([^"]*)"|([^<>,;"]+?))\s*<([^<>\s@]+@[^<>\s]+)>`)

// Resolver resolves names against message headers. It holds no state between calls.
type Resolver struct {
	Policy     Policy
	OwnerEmail string // when set, always the first attendee, accepted
	OwnerName  string
}

type match struct {
	name    string
	address string
}

func headerMatches(value string) []match {
	var out []match
	for _, m := range namedAddress.FindAllStringSubmatch(value, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		name = strings.Trim(strings.TrimSpace(name), `'`)
		out = append(out, match{name: strings.TrimSpace(name), address: m[3]})
	}
	return out
}

// Lookup finds the address for name: the first display name in To, then Cc,
// that contains name case-insensitively. A name that is itself one of the
// header addresses also matches.
func (r Resolver) Lookup(name string, headers map[string]string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}
	msg := models.Message{Headers: headers}
	for _, field := range searchHeaders {
		for _, m := range headerMatches(msg.Header(field)) {
			if strings.EqualFold(m.address, needle) {
				return m.address, true
			}
			if m.name != "" && strings.Contains(strings.ToLower(m.name), needle) {
				return m.address, true
			}
		}
	}
	return "", false
}

// isOwner reports whether name identifies the owner. A name that resolved to
// an address is the owner only when that address is the owner's; otherwise the
// name must be the owner's address or contain the owner's name as whole words.
func (r Resolver) isOwner(name, address string, resolved bool) bool {
	if resolved {
		return strings.EqualFold(address, r.OwnerEmail)
	}
	if strings.EqualFold(strings.TrimSpace(name), r.OwnerEmail) {
		return true
	}
	return r.OwnerName != "" && containsWords(name, r.OwnerName)
}

// containsWords reports whether the words of phrase appear consecutively in s,
// ignoring case and punctuation.
func containsWords(s, phrase string) bool {
	words, want := splitWords(s), splitWords(phrase)
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(words); i++ {
		if slices.Equal(words[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Resolve turns extracted names into attendees. With an owner address
// configured, the owner comes first exactly once with status accepted.
// Resolved addresses are de-duplicated; unmatched names follow the policy.
func (r Resolver) Resolve(names []string, headers map[string]string) []models.Attendee {
	attendees := []models.Attendee{}
	seen := map[string]bool{}
	if r.OwnerEmail != "" {
		attendees = append(attendees, models.Attendee{Email: r.OwnerEmail, ResponseStatus: models.ResponseAccepted})
		seen[strings.ToLower(r.OwnerEmail)] = true
	}

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		address, ok := r.Lookup(name, headers)
		if r.OwnerEmail != "" && r.isOwner(name, address, ok) {
			continue
		}
		if !ok {
			if r.Policy == PolicyDrop {
				continue
			}
			address = name
		}
		key := strings.ToLower(address)
		if seen[key] {
			continue
		}
		seen[key] = true
		attendees = append(attendees, models.Attendee{Email: address})
	}
	return attendees
}
