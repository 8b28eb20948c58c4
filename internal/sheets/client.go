// Package sheets exports session activity to an external spreadsheet through
// a webhook endpoint (a Google Apps Script or similar row-appending service).
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Row is one exported session. The session id and creation timestamp give
// the sheet a stable identity per row, so a re-export after a partial
// failure is recognizable rather than silently duplicated.
type Row struct {
	SessionID       string `json:"session_id"`
	CreatedAt       string `json:"created_at"`
	Status          string `json:"status"`
	UserName        string `json:"user_name"`
	UserEmail       string `json:"user_email"`
	UserPhone       string `json:"user_phone"`
	MessageCount    int    `json:"message_count"`
	AnsweredCount   int    `json:"answered_count"`
	UnansweredCount int    `json:"unanswered_count"`
}

// Appender delivers rows to the external sheet.
type Appender interface {
	Append(ctx context.Context, rows []Row) error
}

// Client appends rows over HTTP.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a sheet client for the given webhook endpoint. The token
// is sent as a bearer credential.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type appendRequest struct {
	Rows []Row `json:"rows"`
}

// Append posts a batch of rows. Any non-2xx response is an error; the caller
// decides whether to retry.
func (c *Client) Append(ctx context.Context, rows []Row) error {
	body, err := json.Marshal(appendRequest{Rows: rows})
	if err != nil {
		return fmt.Errorf("marshalling rows: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting rows: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sheet endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
