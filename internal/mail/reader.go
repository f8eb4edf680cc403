package mail

import (
	"context"
	"fmt"
	"log/slog"

	"mail2cal/internal/models"
)

const toolReadUnread = "read_unread_emails"

// Querier is the subset of the MCP client the reader needs.
type Querier interface {
	QueryJSON(ctx context.Context, tool string, input, out any) error
}

// Reader fetches unread mail through the mail proxy.
type Reader struct {
	client Querier
	logger *slog.Logger
}

// NewReader creates a Reader over an MCP client.
// The client is usually an *mcp.Client pointed at the mail proxy.
func NewReader(logger *slog.Logger, client Querier) *Reader {
	return &Reader{client: client, logger: logger}
}

// ReadUnread returns the unread messages, most recent first.
func (r *Reader) ReadUnread(ctx context.Context) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := r.client.QueryJSON(ctx, toolReadUnread, struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("failed to read unread emails: %w", err)
	}
	r.logger.Info("Fetched unread messages.", "count", len(resp.Messages))
	return resp.Messages, nil
}
