// Package calendar forwards event-creation requests to the calendar proxy.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"mail2cal/internal/mcp"
	"mail2cal/internal/models"
)

const toolCreateEvent = "create_event"

// ResponseDecodeError reports a calendar response whose body is not JSON.
// The event may still have been created upstream.
type ResponseDecodeError struct {
	StatusCode int
	Raw        string
	Err        error
}

func (e *ResponseDecodeError) Error() string {
	return fmt.Sprintf("could not decode calendar response (status %d): %v", e.StatusCode, e.Err)
}

func (e *ResponseDecodeError) Unwrap() error { return e.Err }

// Diagnostic is the object returned to the caller in place of the proxy's body.
type Diagnostic struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	Raw        string `json:"raw"`
	Detail     string `json:"detail"`
}

// Diagnostic renders e for the caller.
func (e *ResponseDecodeError) Diagnostic() Diagnostic {
	return Diagnostic{
		Error:      "Could not decode calendar response",
		StatusCode: e.StatusCode,
		Raw:        e.Raw,
		Detail:     e.Err.Error(),
	}
}

// Querier is the subset of the MCP client the dispatcher needs.
type Querier interface {
	Query(ctx context.Context, tool string, input any) (*mcp.Response, error)
}

// Dispatcher creates events through the calendar proxy.
type Dispatcher struct {
	client Querier
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher over an MCP client.
func NewDispatcher(logger *slog.Logger, client Querier) *Dispatcher {
	return &Dispatcher{client: client, logger: logger}
}

// CreateEvent sends req as a create_event query and returns the proxy's JSON
// body untouched. A 2xx body that is not JSON yields *ResponseDecodeError;
// transport failures and non-2xx statuses yield *upstream.Error.
func (d *Dispatcher) CreateEvent(ctx context.Context, req *models.CalendarEventRequest) (json.RawMessage, error) {
	d.logger.Info("Creating calendar event.", "summary", req.Summary, "start", req.Start, "attendees", len(req.Attendees))

	resp, err := d.client.Query(ctx, toolCreateEvent, req)
	if err != nil {
		return nil, err
	}

	var body json.RawMessage
	if jerr := json.Unmarshal(resp.Body, &body); jerr != nil {
		return nil, &ResponseDecodeError{StatusCode: resp.StatusCode, Raw: string(resp.Body), Err: jerr}
	}

	d.logger.Info("Calendar event created.", "status", resp.StatusCode)
	return body, nil
}
