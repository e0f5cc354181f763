// Package client is the official Go SDK for the agendad API.
//
// # Quick start
//
//	c := client.New("http://localhost:8080")
//
//	// Schedule an event for one hour from now with a 10-minute warning
//	id, err := c.Schedule(ctx, "nightly-backup", time.Now().Add(time.Hour),
//	    client.WithWarning(10*time.Minute))
//
//	// Inspect, move, cancel
//	ev, err := c.Event(ctx, id)
//	ev, err = c.Reschedule(ctx, id, time.Now().Add(2*time.Hour))
//	err = c.Cancel(ctx, id)
//
// # Error handling
//
// All methods return an *APIError when the server responds with a non-2xx
// status code. Use IsNotFound(err) for the common 404 case.
//
// # Connection reuse
//
// Client is safe for concurrent use. It shares a single http.Client internally
// so connections are reused across goroutines.
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

// ─── Error type ───────────────────────────────────────────────────────────────

// APIError is returned when the agendad server responds with a non-2xx status.
type APIError struct {
	StatusCode int    // HTTP status code
	Message    string // "error" field from the JSON response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agenda: server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// ─── Client options ───────────────────────────────────────────────────────────

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent in every request as the X-Api-Key header.
// Required when the server has auth.enabled = true.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default http.Client.
// Use this to configure TLS, proxies, or request tracing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
// The default is 30 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client is the agendad API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new Client that connects to the agendad server at baseURL.
//
//	c := client.New("http://localhost:8080")
//	c := client.New("http://agenda.example.com", client.WithAPIKey("secret"))
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── Schedule options ─────────────────────────────────────────────────────────

// ScheduleOption configures a single Schedule call.
type ScheduleOption func(*schedulePayload)

// WithWarning requests an advance warning the given duration before the
// event's scheduled time.
//
//	client.WithWarning(10 * time.Minute)
func WithWarning(d time.Duration) ScheduleOption {
	return func(p *schedulePayload) { p.WarnBeforeMs = d.Milliseconds() }
}

// WithDescription attaches free-form display text to the event.
func WithDescription(desc string) ScheduleOption {
	return func(p *schedulePayload) { p.Description = desc }
}

// ─── Domain types ─────────────────────────────────────────────────────────────

// Event is a scheduled event as reported by the server.
type Event struct {
	// ID is the ULID assigned at schedule time.
	ID string

	// Name and Description are the display metadata given at schedule time.
	Name        string
	Description string

	// At is the scheduled execution time (UTC).
	At time.Time

	// WarnBefore is the advance-warning lead time; zero means no warning.
	WarnBefore time.Duration

	// WarningSent reports whether the warning stage has already fired.
	WarningSent bool
}

// Execution is one entry from the server's execution history.
type Execution struct {
	Event      Event
	ExecutedAt time.Time
}

// HealthInfo contains the data returned by the /healthz endpoint.
type HealthInfo struct {
	Status     string
	InstanceID string
	Scheduled  int
	Uptime     time.Duration
	Version    string
}

// ─── Event operations ─────────────────────────────────────────────────────────

// Schedule registers a new event due at the given time and returns its ULID.
//
//	id, err := c.Schedule(ctx, "renew-cert", time.Now().Add(24*time.Hour),
//	    client.WithWarning(time.Hour))
func (c *Client) Schedule(ctx context.Context, name string, at time.Time, opts ...ScheduleOption) (string, error) {
	p := &schedulePayload{
		Name: name,
		At:   at.UnixMilli(),
	}
	for _, o := range opts {
		o(p)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/events", p, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Events returns all currently scheduled events in schedule order.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var resp struct {
		Events []wireEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/events", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(resp.Events))
	for i := range resp.Events {
		out = append(out, resp.Events[i].toEvent())
	}
	return out, nil
}

// Event fetches a single scheduled event by ID.
// Use IsNotFound(err) to detect an unknown or already-executed event.
func (c *Client) Event(ctx context.Context, id string) (Event, error) {
	var w wireEvent
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), nil, &w); err != nil {
		return Event{}, err
	}
	return w.toEvent(), nil
}

// Cancel removes a scheduled event before it executes.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil)
}

// Reschedule moves an event to a new time and returns its updated state.
// The warning is re-armed even if it had already fired.
func (c *Client) Reschedule(ctx context.Context, id string, at time.Time) (Event, error) {
	p := map[string]int64{"at": at.UnixMilli()}
	var w wireEvent
	if err := c.do(ctx, http.MethodPatch, "/events/"+url.PathEscape(id), p, &w); err != nil {
		return Event{}, err
	}
	return w.toEvent(), nil
}

// ─── History ──────────────────────────────────────────────────────────────────

// History returns recently executed events, newest first.
func (c *Client) History(ctx context.Context) ([]Execution, error) {
	var resp struct {
		Entries []wireExecution `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/history", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Execution, 0, len(resp.Entries))
	for i := range resp.Entries {
		out = append(out, resp.Entries[i].toExecution())
	}
	return out, nil
}

// HistoryEntry fetches the execution record of one event by ID.
func (c *Client) HistoryEntry(ctx context.Context, id string) (Execution, error) {
	var w wireExecution
	if err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(id), nil, &w); err != nil {
		return Execution{}, err
	}
	return w.toExecution(), nil
}

// ─── Webhook subscriptions ────────────────────────────────────────────────────

// Subscribe registers a webhook URL that will receive a POST per executed
// event. When secret is non-empty, requests carry an HMAC-SHA256 signature in
// the X-Agenda-Signature header.
func (c *Client) Subscribe(ctx context.Context, webhookURL, secret string) (string, error) {
	p := map[string]string{"url": webhookURL, "secret": secret}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/subscriptions", p, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Unsubscribe removes a webhook subscription.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(id), nil, nil)
}

// ─── Health ───────────────────────────────────────────────────────────────────

// Health fetches the server's health snapshot.
func (c *Client) Health(ctx context.Context) (HealthInfo, error) {
	var resp struct {
		Status     string `json:"status"`
		InstanceID string `json:"instance_id"`
		Scheduled  int    `json:"scheduled"`
		UptimeMs   int64  `json:"uptime_ms"`
		Version    string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return HealthInfo{}, err
	}
	return HealthInfo{
		Status:     resp.Status,
		InstanceID: resp.InstanceID,
		Scheduled:  resp.Scheduled,
		Uptime:     time.Duration(resp.UptimeMs) * time.Millisecond,
		Version:    resp.Version,
	}, nil
}

// ─── HTTP transport ───────────────────────────────────────────────────────────

// do performs a single HTTP request.
// body is encoded as JSON when non-nil, resp is decoded from JSON when non-nil.
// A 204 No Content response is treated as success with no body.
func (c *Client) do(ctx context.Context, method, path string, body, resp any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("agenda: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("agenda: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agenda: request %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	// Success without body
	if httpResp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("agenda: read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return &APIError{StatusCode: httpResp.StatusCode, Message: msg}
	}

	if resp != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, resp); err != nil {
			return fmt.Errorf("agenda: decode response: %w", err)
		}
	}
	return nil
}

// ─── Internal wire types ──────────────────────────────────────────────────────

type schedulePayload struct {
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	At           int64  `json:"at"`
	WarnBeforeMs int64  `json:"warn_before_ms,omitempty"`
}

type wireEvent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	At           int64  `json:"at"`
	WarnBeforeMs int64  `json:"warn_before_ms"`
	WarningSent  bool   `json:"warning_sent"`
}

func (w *wireEvent) toEvent() Event {
	return Event{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		At:          time.UnixMilli(w.At).UTC(),
		WarnBefore:  time.Duration(w.WarnBeforeMs) * time.Millisecond,
		WarningSent: w.WarningSent,
	}
}

type wireExecution struct {
	Event      wireEvent `json:"event"`
	ExecutedAt int64     `json:"executed_at"`
}

func (w *wireExecution) toExecution() Execution {
	return Execution{
		Event:      w.Event.toEvent(),
		ExecutedAt: time.UnixMilli(w.ExecutedAt).UTC(),
	}
}
