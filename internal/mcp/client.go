// Package mcp talks to the mail and calendar proxies through their shared
// query interface: POST {base}/mcp/query with {"tool": ..., "input": ...}.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mail2cal/internal/upstream"
)

const queryPath = "/mcp/query"

// bearerTransport adds the shared bearer token and a user agent to every request.
type bearerTransport struct {
	Token     string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.Token)
	req.Header.Set("User-Agent", "mail2cal/1.0")
	return t.Transport.RoundTrip(req)
}

// Client is a client for one MCP proxy.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Response is a raw proxy response.
type Response struct {
	StatusCode int
	Body       []byte
}

type query struct {
	Tool  string `json:"tool"`
	Input any    `json:"input"`
}

// NewClient creates a client for the proxy at baseURL. service names the proxy
// in logs and errors ("mail", "calendar"). A zero timeout disables the limit.
func NewClient(logger *slog.Logger, service, baseURL, token string, timeout time.Duration) *Client {
	transport := &bearerTransport{
		Token:     token,
		Transport: http.DefaultTransport,
	}
	return &Client{
		service:    service,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		logger:     logger,
	}
}

// Service returns the name this client reports in errors.
func (c *Client) Service() string { return c.service }

// Query invokes tool with input and returns the response whatever its body.
// Transport failures and non-2xx statuses are returned as *upstream.Error;
// in the non-2xx case the response is returned too.
func (c *Client) Query(ctx context.Context, tool string, input any) (*Response, error) {
	if input == nil {
		input = struct{}{}
	}
	payload, err := json.Marshal(query{Tool: tool, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s query: %w", tool, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", tool, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Calling MCP proxy.", "service", c.service, "tool", tool)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream.Classify(c.service, fmt.Errorf("%s request failed: %w", tool, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.Classify(c.service, fmt.Errorf("failed to read %s response: %w", tool, err))
	}
	c.logger.Debug("MCP proxy responded.", "service", c.service, "tool", tool, "status", resp.StatusCode, "elapsed", time.Since(start))

	out := &Response{StatusCode: resp.StatusCode, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, upstream.StatusError(c.service, resp.StatusCode, body)
	}
	return out, nil
}

// QueryJSON invokes tool and decodes a successful response into out.
func (c *Client) QueryJSON(ctx context.Context, tool string, input, out any) error {
	resp, err := c.Query(ctx, tool, input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &upstream.Error{
			Service: c.service,
			Kind:    upstream.KindUnknown,
			Err:     fmt.Errorf("failed to decode %s response: %w", tool, err),
		}
	}
	return nil
}
