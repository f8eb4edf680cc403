package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"mail2cal/internal/models"
)

// DecodeError reports a model reply that is not a usable event.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode model reply: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder converts the untrusted reply text into an event.
type Decoder interface {
	Decode(reply string) (*models.ExtractedEvent, error)
}

// StrictDecoder accepts exactly one JSON object with the event fields and
// nothing else around it. The summary may be empty; start and end must be
// date-times, parsed in Location when they carry no offset.
type StrictDecoder struct {
	Location *time.Location
}

// Decode parses reply. Every failure is a *DecodeError carrying the raw text.
func (d StrictDecoder) Decode(reply string) (*models.ExtractedEvent, error) {
	event, err := d.decode(reply)
	if err != nil {
		return nil, &DecodeError{Raw: reply, Err: err}
	}
	return event, nil
}

func (d StrictDecoder) decode(reply string) (*models.ExtractedEvent, error) {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, errors.New("reply is not a bare JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	var event models.ExtractedEvent
	if err := dec.Decode(&event); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected content after JSON object")
	}

	start, err := d.parseTime("start", event.Start)
	if err != nil {
		return nil, err
	}
	end, err := d.parseTime("end", event.End)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %q is before start %q", event.End, event.Start)
	}
	if event.Attendees == nil {
		event.Attendees = []string{}
	}
	return &event, nil
}

func (d StrictDecoder) parseTime(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("missing %q", field)
	}
	t, err := ParseTime(value, d.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %q: %w", field, err)
	}
	return t, nil
}

// ParseTime parses a model-supplied date-time. Values without an offset are
// read in loc, or UTC when loc is nil.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range basicISOLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseIn(value, loc)
}

// basicISOLayouts are the ISO-8601 basic forms dateparse does not recognize.
var basicISOLayouts = []string{
	"20060102T150405Z0700",
	"20060102T150405",
	"20060102T1504Z0700",
	"20060102T1504",
}
