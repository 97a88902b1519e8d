package planservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fitness-planner/internal/config"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxResponseSize = 4 << 20

// TokenSource returns the session token to attach to requests, or "".
type TokenSource func() string

// HistoryEntry is a previously generated plan as stored by the service.
type HistoryEntry struct {
	ID             string
	CreatedAt      time.Time
	RequestSummary map[string]any
	Plan           Plan
}

// Session is the result of a successful login or signup.
type Session struct {
	Token   string
	Name    string
	Message string
}

// Client talks to the remote plan service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      TokenSource
}

// NewClient creates a new plan service client. token may be nil.
func NewClient(cfg *config.Config, token TokenSource) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    strings.TrimRight(cfg.PlanServiceURL, "/"),
		token:      token,
	}
}

// Generate asks the service for a plan. Errors are a *ServiceError, an
// *EmptyResultError or a *NetworkError.
func (c *Client) Generate(ctx context.Context, req Request) (Plan, error) {
	kind := req.Kind()
	path, ok := generatePaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown plan kind %q", kind)
	}

	status, data, err := c.do(ctx, http.MethodPost, path, nil, req)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if !isSuccess(status) {
			return nil, statusError(http.MethodPost, path, status)
		}
		return nil, &EmptyResultError{Kind: kind, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if msg := errorMessage(fields, status); msg != "" {
		return nil, &ServiceError{Message: msg, StatusCode: status}
	}
	if !isSuccess(status) {
		return nil, statusError(http.MethodPost, path, status)
	}

	payload := json.RawMessage(data)
	switch kind {
	case KindWeekly:
		payload = fields["weekly_plan"]
	case KindMeal:
		payload = fields["meal_plan"]
	case KindWorkout:
		payload = fields["workout_plan"]
	}
	return DecodePlan(kind, payload)
}

// History fetches the stored plans of kind for email, most recent first.
func (c *Client) History(ctx context.Context, kind Kind, email string) ([]HistoryEntry, error) {
	path, ok := historyPaths[kind]
	if !ok {
		return nil, fmt.Errorf("plan kind %q has no history", kind)
	}

	status, data, err := c.do(ctx, http.MethodGet, path, url.Values{"email": {email}}, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		var fields map[string]json.RawMessage
		if json.Unmarshal(data, &fields) == nil {
			if msg := errorMessage(fields, status); msg != "" {
				return nil, &ServiceError{Message: msg, StatusCode: status}
			}
		}
		return nil, statusError(http.MethodGet, path, status)
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var fields map[string]json.RawMessage
		if json.Unmarshal(data, &fields) == nil {
			if msg := errorMessage(fields, status); msg != "" {
				return nil, &ServiceError{Message: msg, StatusCode: status}
			}
		}
		return nil, fmt.Errorf("failed to decode %s history: %w", kind, err)
	}

	entries := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		entries = append(entries, decodeHistoryEntry(kind, item))
	}
	return entries, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	return c.authenticate(ctx, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Signup creates an account and returns its first session.
func (c *Client) Signup(ctx context.Context, name, email, password string) (Session, error) {
	return c.authenticate(ctx, "/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body map[string]string) (Session, error) {
	status, data, err := c.do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return Session{}, err
	}

	var resp struct {
		Message string `json:"message"`
		Token   string `json:"token"`
		Name    string `json:"name"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		if !isSuccess(status) {
			return Session{}, statusError(http.MethodPost, path, status)
		}
		return Session{}, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if resp.Error != "" {
		return Session{}, &ServiceError{Message: resp.Error, StatusCode: status}
	}
	if !isSuccess(status) {
		return Session{}, statusError(http.MethodPost, path, status)
	}
	if resp.Token == "" {
		return Session{}, &ServiceError{Message: "no session token returned", StatusCode: status}
	}

	return Session{Token: resp.Token, Name: resp.Name, Message: resp.Message}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, &RequestError{Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, &RequestError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	logger := log.WithFields(log.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Warn("plan service call failed")
		return 0, nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, &NetworkError{Op: "read " + path, Err: err}
	}

	logger.WithFields(log.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("plan service call")

	return resp.StatusCode, data, nil
}

func decodeHistoryEntry(kind Kind, item map[string]json.RawMessage) HistoryEntry {
	entry := HistoryEntry{RequestSummary: make(map[string]any)}

	for key, raw := range item {
		switch key {
		case "id", "_id":
			var id Value
			if err := json.Unmarshal(raw, &id); err == nil && entry.ID == "" {
				entry.ID = id.String()
			}
		case "created_at":
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				entry.CreatedAt = parseTime(s)
			}
		case "plan":
			plan, err := DecodePlan(kind, raw)
			if err != nil {
				log.WithError(err).WithField("kind", kind).Debug("history entry without usable plan")
				continue
			}
			entry.Plan = plan
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err == nil {
				entry.RequestSummary[key] = v
			}
		}
	}
	return entry
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// errorMessage extracts a structured error from a response body. "detail" is
// only considered on failed responses.
func errorMessage(fields map[string]json.RawMessage, status int) string {
	if msg := rawText(fields["error"]); msg != "" {
		return msg
	}
	if !isSuccess(status) {
		return rawText(fields["detail"])
	}
	return ""
}

func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// statusError reports a failed response that carried no structured error.
func statusError(method, path string, status int) *NetworkError {
	return &NetworkError{
		Op:         method + " " + path,
		Err:        fmt.Errorf("unexpected status %d", status),
		StatusCode: status,
	}
}
