package models

import "encoding/json"

// ExtractedEvent is the meeting intent decoded from the language model's reply.
type ExtractedEvent struct {
	Summary   string   `json:"summary"`
	Start     string   `json:"start"`     // ISO-8601, as written by the model
	End       string   `json:"end"`       // ISO-8601, as written by the model
	Attendees []string `json:"attendees"` // Names or addresses, before resolution
}

// Attendee is a resolved invitee.
type Attendee struct {
	Email          string `json:"email"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// ResponseAccepted marks an attendee who has already accepted (the owner).
const ResponseAccepted = "accepted"

// CalendarEventRequest is the payload handed to a calendar backend.
type CalendarEventRequest struct {
	Summary   string
	Start     string
	End       string
	Timezone  string
	Attendees []Attendee
	// AttendeeRecords selects the wire shape of Attendees: plain address
	// strings when false, {email, responseStatus} records when true.
	AttendeeRecords bool
}

// MarshalJSON encodes the request in the shape the calendar proxy expects.
func (r CalendarEventRequest) MarshalJSON() ([]byte, error) {
	type wire struct {
		Summary   string `json:"summary"`
		Start     string `json:"start"`
		End       string `json:"end"`
		Timezone  string `json:"timezone,omitempty"`
		Attendees any    `json:"attendees"`
	}
	w := wire{Summary: r.Summary, Start: r.Start, End: r.End, Timezone: r.Timezone}
	if r.AttendeeRecords {
		records := r.Attendees
		if records == nil {
			records = []Attendee{}
		}
		w.Attendees = records
	} else {
		plain := make([]string, 0, len(r.Attendees))
		for _, a := range r.Attendees {
			plain = append(plain, a.Email)
		}
		w.Attendees = plain
	}
	return json.Marshal(w)
}
