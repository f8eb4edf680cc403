package llm

import (
	"fmt"
	"strings"

	"mail2cal/internal/attendee"
)

// Variant bundles the choices that distinguish one extraction flavour from
// another: which prompt is sent and how the decoded event becomes a request.
type Variant struct {
	Name     string
	Template string
	// Policy is the default unmatched-attendee policy.
	Policy attendee.Policy
	// AttendeeRecords emits {email, responseStatus} records and puts the owner first.
	AttendeeRecords bool
	// IncludeTimezone adds the configured timezone to the calendar request.
	IncludeTimezone bool
}

var (
	// Classic sends only the email text and forwards names as plain strings.
	Classic = Variant{
		Name:     "classic",
		Template: classicTemplate,
		Policy:   attendee.PolicyKeep,
	}
	// Rich adds headers and today's date, drops unresolvable names and
	// always invites the owner first as accepted.
	Rich = Variant{
		Name:            "rich",
		Template:        richTemplate,
		Policy:          attendee.PolicyDrop,
		AttendeeRecords: true,
		IncludeTimezone: true,
	}
)

// ParseVariant returns the preset called name.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Classic.Name:
		return Classic, nil
	case Rich.Name:
		return Rich, nil
	default:
		return Variant{}, fmt.Errorf("unknown prompt variant %q (want classic or rich)", name)
	}
}

// Prompt compiles the variant's template.
func (v Variant) Prompt() (*Prompt, error) {
	return NewPrompt(v.Name, v.Template)
}
