// Package client implements the Jules HTTP client.
//
// The client handles all communication with the Jules API:
// - GET /sources, GET /sources/{id} - Sources the service can work on
// - GET|POST /sessions, GET|DELETE /sessions/{id} - Session lifecycle
// - POST /sessions/{id}:approvePlan, :sendMessage - Session actions
// - GET /sessions/{id}/activities - Paginated activity log
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://jules.googleapis.com/v1alpha"

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// maxResponseSize limits response body reads to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// apiKeyHeader carries the API key on every request.
const apiKeyHeader = "x-goog-api-key"

// ErrAPIKeyMissing is returned when no API key has been configured.
var ErrAPIKeyMissing = errors.New("API key is missing")

// Client is the Jules HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// New creates a client for baseURL authenticated with apiKey.
// An empty apiKey returns ErrAPIKeyMissing.
func New(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		apiKey: apiKey,
	}, nil
}

// ListSources lists the sources available to the caller.
func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	var resp ListSourcesResponse
	if err := c.get(ctx, "/sources", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// GetSource fetches a source by ID.
func (c *Client) GetSource(ctx context.Context, id string) (*Source, error) {
	var resp Source
	if err := c.get(ctx, "/sources/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions lists all sessions, following server pagination to the end.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	pageToken := ""
	for {
		var query url.Values
		if pageToken != "" {
			query = url.Values{"pageToken": {pageToken}}
		}
		var resp ListSessionsResponse
		if err := c.get(ctx, "/sessions", query, &resp); err != nil {
			return nil, err
		}
		sessions = append(sessions, resp.Sessions...)
		if resp.NextPageToken == "" || resp.NextPageToken == pageToken {
			return sessions, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetSession fetches a session by ID.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var resp Session
	if err := c.get(ctx, "/sessions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSession starts a new session.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	var resp Session
	if err := c.post(ctx, "/sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteSession deletes a session by ID.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil, nil)
}

// ApprovePlan approves the pending plan of a session.
func (c *Client) ApprovePlan(ctx context.Context, id string) error {
	return c.post(ctx, "/sessions/"+url.PathEscape(id)+":approvePlan", struct{}{}, nil)
}

// SendMessage sends a user prompt to a session.
func (c *Client) SendMessage(ctx context.Context, id, prompt string) error {
	body := struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt}
	return c.post(ctx, "/sessions/"+url.PathEscape(id)+":sendMessage", body, nil)
}

// ListActivities fetches one page of a session's activity log.
// An empty pageToken requests the first page.
func (c *Client) ListActivities(ctx context.Context, sessionID, pageToken string) (*ListActivitiesResponse, error) {
	var query url.Values
	if pageToken != "" {
		query = url.Values{"page_token": {pageToken}}
	}
	var resp ListActivitiesResponse
	if err := c.get(ctx, "/sessions/"+url.PathEscape(sessionID)+"/activities", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetActivity fetches a single activity.
func (c *Client) GetActivity(ctx context.Context, sessionID, id string) (*Activity, error) {
	var resp Activity
	path := "/sessions/" + url.PathEscape(sessionID) + "/activities/" + url.PathEscape(id)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Error represents an error response from the Jules API.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether the server rejected the credentials.
func (e *Error) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sending request: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// get sends a GET request with query parameters and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, respBody any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, respBody)
}

// post sends a POST request and decodes the JSON response.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	return c.do(ctx, http.MethodPost, path, nil, reqBody, respBody)
}

// do sends a request and decodes the JSON response into respBody, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	// Read maxResponseSize+1 to detect oversized responses while still accepting
	// responses exactly at the limit. If we read more than maxResponseSize, reject.
	respBodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}
	if int64(len(respBodyBytes)) > maxResponseSize {
		return fmt.Errorf("response exceeds maximum size of %d bytes", maxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			StatusCode: resp.StatusCode,
			Body:       string(respBodyBytes),
		}
	}

	if respBody == nil || len(bytes.TrimSpace(respBodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBodyBytes, respBody); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
