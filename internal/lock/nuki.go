// Package lock provides the Nuki Web API client, the authorization state
// reader, and the reconciler that converges a lock's guest-code window onto
// the resolved stay window.
package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stay-lock-sync/backend/internal/booking"
	"github.com/stay-lock-sync/backend/internal/config"
)

const (
	// AuthTypeKeypad is the Nuki authorization type for keypad codes.
	AuthTypeKeypad = 13

	// AllWeekdays is the weekday mask granting access on every day.
	AllWeekdays = 127
)

// ErrConflict is returned by Create when the backend reports the
// authorization already exists. Callers re-read instead of failing.
var ErrConflict = errors.New("authorization already exists")

// Authorization is the lock-side representation of one named access code.
// It is owned by the vendor backend; this process only ever reads and writes
// the single keypad entry matching a unit's configured code name.
type Authorization struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Type             int     `json:"type"`
	AllowedFromDate  *string `json:"allowedFromDate,omitempty"`
	AllowedUntilDate *string `json:"allowedUntilDate,omitempty"`
	AllowedWeekDays  int     `json:"allowedWeekDays,omitempty"`
}

// Window parses the authorization's configured access window. Returns nil
// when neither bound is set. A half-set window keeps a zero time for the
// missing bound, which never compares equal to a real desired window.
func (a *Authorization) Window() *booking.Window {
	from := parseBackendTime(a.AllowedFromDate)
	until := parseBackendTime(a.AllowedUntilDate)
	if from == nil && until == nil {
		return nil
	}

	var w booking.Window
	if from != nil {
		w.Start = *from
	}
	if until != nil {
		w.End = *until
	}
	return &w
}

// backendTimeLayouts covers the timestamp shapes the backend emits.
var backendTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseBackendTime parses an ISO timestamp as naive UTC; a trailing Z is
// stripped first. Unparseable or empty values read as unset.
func parseBackendTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	v = strings.TrimSuffix(v, "Z")

	for _, layout := range backendTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// formatBackendTime renders an instant the way the backend expects:
// millisecond-precision ISO with a Z suffix.
func formatBackendTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000") + "Z"
}

// AuthStore is the vendor-backend surface the reader and reconciler consume.
type AuthStore interface {
	// List returns all authorizations of a smart lock.
	List(ctx context.Context, smartlockID int64) ([]Authorization, error)

	// Create registers a new keypad code on the lock, valid on all
	// weekdays and without a time window. ErrConflict signals the code
	// already exists.
	Create(ctx context.Context, smartlockID int64, name string, pin, weekdayMask int) error

	// SetWindow updates the authorization's access window. Nil bounds
	// clear the window.
	SetWindow(ctx context.Context, smartlockID int64, authID string, start, end *time.Time) error

	// ForceSync asks the backend to push pending changes to the lock.
	// Best-effort: failures are logged by callers, never fatal.
	ForceSync(ctx context.Context, smartlockID int64) error
}

// Client is a Nuki Web API client.
type Client struct {
	cfg        config.NukiConfig
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a Nuki Web API client.
func NewClient(cfg config.NukiConfig, logger *zap.SugaredLogger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// List retrieves all authorizations of a smart lock. An empty or 204
// response reads as an empty list, not an error.
func (c *Client) List(ctx context.Context, smartlockID int64) ([]Authorization, error) {
	path := fmt.Sprintf("/smartlock/%d/auth", smartlockID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var auths []Authorization
	if err := json.Unmarshal(body, &auths); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return auths, nil
}

// Create registers a new keypad code on the lock.
func (c *Client) Create(ctx context.Context, smartlockID int64, name string, pin, weekdayMask int) error {
	payload := map[string]any{
		"name":            name,
		"type":            AuthTypeKeypad,
		"code":            pin,
		"smartlockIds":    []int64{smartlockID},
		"allowedWeekDays": weekdayMask,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/smartlock/auth", bytes.NewReader(body))
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)
	}
}

// SetWindow updates an authorization's access window. Nil bounds clear it.
func (c *Client) SetWindow(ctx context.Context, smartlockID int64, authID string, start, end *time.Time) error {
	payload := map[string]any{
		"allowedFromDate":  nil,
		"allowedUntilDate": nil,
	}
	if start != nil && end != nil {
		payload["allowedFromDate"] = formatBackendTime(*start)
		payload["allowedUntilDate"] = formatBackendTime(*end)
		payload["allowedWeekDays"] = AllWeekdays
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	path := fmt.Sprintf("/smartlock/%d/auth/%s", smartlockID, authID)
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)
	}

	return nil
}

// ForceSync triggers a backend-to-lock synchronization. Frequent syncs cost
// battery, so this only runs after an actual write.
func (c *Client) ForceSync(ctx context.Context, smartlockID int64) error {
	path := fmt.Sprintf("/smartlock/%d/sync", smartlockID)
	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)
	}
}

// Reachable reports whether the backend responds at all. Used by the status
// endpoint; kept fast so it never delays a status request.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.BaseURL, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

// newRequest creates an HTTP request with bearer authentication.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}
