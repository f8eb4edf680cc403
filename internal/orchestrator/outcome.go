package orchestrator

import (
	"encoding/json"

	"mail2cal/internal/calendar"
	"mail2cal/internal/llm"
	"mail2cal/internal/upstream"
)

// Error kinds reported in Outcome.Kind.
const (
	KindReplyDecode            = "reply_decode_error"
	KindCalendarResponseDecode = "calendar_response_decode_error"
	KindUpstream               = "upstream_error"
)

// StatusNoMessages is reported when the mailbox has nothing unread.
const StatusNoMessages = "No recent messages found."

// Outcome is the result of one run, shaped for the JSON response.
type Outcome struct {
	Status string `json:"status,omitempty"`

	// Dry run.
	Email     string `json:"email,omitempty"`
	Extracted string `json:"extracted,omitempty"`

	// Failures.
	Error        string        `json:"error,omitempty"`
	Kind         string        `json:"kind,omitempty"`
	Raw          string        `json:"raw,omitempty"`
	Detail       string        `json:"detail,omitempty"`
	Service      string        `json:"service,omitempty"`
	UpstreamKind upstream.Kind `json:"upstream_kind,omitempty"`
	StatusCode   int           `json:"status_code,omitempty"`

	CalendarResponse any `json:"calendar_response,omitempty"`

	Err    error `json:"-"`
	DryRun bool  `json:"-"`
}

func noMessages() Outcome {
	return Outcome{Status: StatusNoMessages}
}

func dryRunOutcome(snippet, reply string) Outcome {
	return Outcome{Email: snippet, Extracted: reply, DryRun: true}
}

func replyDecodeOutcome(err *llm.DecodeError) Outcome {
	return Outcome{
		Error:  "Could not parse model reply",
		Kind:   KindReplyDecode,
		Raw:    err.Raw,
		Detail: err.Err.Error(),
		Err:    err,
	}
}

func calendarDecodeOutcome(err *calendar.ResponseDecodeError) Outcome {
	return Outcome{
		Kind:             KindCalendarResponseDecode,
		CalendarResponse: err.Diagnostic(),
		Err:              err,
	}
}

func upstreamOutcome(ue *upstream.Error, err error) Outcome {
	return Outcome{
		Error:        "Upstream call failed",
		Kind:         KindUpstream,
		Service:      ue.Service,
		UpstreamKind: ue.Kind,
		StatusCode:   ue.StatusCode,
		Detail:       err.Error(),
		Err:          err,
	}
}

// Failed reports whether the run ended in an error.
func (o Outcome) Failed() bool { return o.Err != nil }

// MarshalJSON emits exactly {email, extracted} for a dry run, even when
// either is empty, and the populated fields otherwise.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.DryRun {
		return json.Marshal(struct {
			Email     string `json:"email"`
			Extracted string `json:"extracted"`
		}{o.Email, o.Extracted})
	}
	type plain Outcome
	return json.Marshal(plain(o))
}

// MarshalIndent is a convenience for the CLI.
func (o Outcome) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(o, "", "  ")
}
