// Package upstream classifies failures of outbound calls (mail proxy, language
// model, calendar backend) into a small set of kinds the caller can report.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

// Kind is the class of an outbound failure.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindStatus     Kind = "status"
	KindUnknown    Kind = "unknown"
)

// Error describes a failed outbound call.
type Error struct {
	Service    string // "mail", "llm" or "calendar"
	Kind       Kind
	StatusCode int // set for KindStatus
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s: upstream returned status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream %s: %v", e.Service, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError builds a KindStatus error for a non-2xx response.
func StatusError(service string, code int, body []byte) *Error {
	text := truncate(string(body), maxBodyText)
	return &Error{
		Service:    service,
		Kind:       KindStatus,
		StatusCode: code,
		Err:        fmt.Errorf("%s: %s", http.StatusText(code), text),
	}
}

const maxBodyText = 512

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Classify wraps err as an *Error for service. An err that already is (or wraps)
// an *Error is returned unchanged.
func Classify(service string, err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &Error{Service: service, Kind: KindStatus, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &Error{Service: service, Kind: KindStatus, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Service: service, Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Service: service, Kind: KindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Service: service, Kind: KindConnection, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Service: service, Kind: KindConnection, Err: err}
	}
	return &Error{Service: service, Kind: KindUnknown, Err: err}
}
