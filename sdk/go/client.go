package deliberationsdk

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
)

// Client is a minimal deliberation HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Resources is a time/money/labor amount.
type Resources struct {
	Time  int `json:"time"`
	Money int `json:"money"`
	Labor int `json:"labor"`
}

// Character represents the API character model (partial).
type Character struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Interests     string    `json:"interests,omitempty"`
	Resources     Resources `json:"resources"`
	ResourcesText string    `json:"resources_text"`
}

// Project represents the API project model (partial).
type Project struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	RequiredResources string         `json:"required_resources"`
	Requirement       Resources      `json:"requirement"`
	Outcomes          string         `json:"outcomes"`
	Outcome           map[string]int `json:"outcome"`
	Completed         bool           `json:"completed"`
	CompletedAt       *string        `json:"completed_at,omitempty"`
}

type Settlement struct {
	ID            string               `json:"id"`
	ProjectID     string               `json:"project_id"`
	ActorID       string               `json:"actor_id"`
	Contributions map[string]Resources `json:"contributions"`
	Total         Resources            `json:"total"`
	Outcome       map[string]int       `json:"outcome"`
	CreatedAt     string               `json:"created_at"`
}

// SettleResult is the outcome of one settlement attempt. Settlement is nil
// unless Verdict is SUFFICIENT.
type SettleResult struct {
	Verdict    string      `json:"verdict"`
	Message    string      `json:"message"`
	Project    Project     `json:"project"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

type Metric struct {
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	Value     int    `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// Login selects the character with the given name.
func (c *Client) Login(ctx context.Context, name string) (Character, error) {
	var resp Character
	err := c.do(ctx, http.MethodPost, "login", map[string]string{"name": name}, &resp)
	return resp, err
}

func (c *Client) Characters(ctx context.Context) ([]Character, error) {
	var resp []Character
	err := c.do(ctx, http.MethodGet, "characters", nil, &resp)
	return resp, err
}

func (c *Client) Character(ctx context.Context, id string) (Character, error) {
	var resp Character
	err := c.do(ctx, http.MethodGet, "characters/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Projects lists projects; status is open, completed or all.
func (c *Client) Projects(ctx context.Context, status string) ([]Project, error) {
	endpoint := "projects"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Project(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Settle submits contributions keyed by character id. A rejected verdict is
// returned as a result, not an error.
func (c *Client) Settle(ctx context.Context, projectID, actorID string, contributions map[string]Resources) (SettleResult, error) {
	body := map[string]any{
		"actor_id":      actorID,
		"contributions": contributions,
	}
	var resp SettleResult
	endpoint := fmt.Sprintf("projects/%s/settlements", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Settlements returns settlement history, newest first.
func (c *Client) Settlements(ctx context.Context, limit int) ([]Settlement, error) {
	endpoint := "settlements"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Settlement
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Scoreboard(ctx context.Context) ([]Metric, error) {
	var resp []Metric
	err := c.do(ctx, http.MethodGet, "scoreboard", nil, &resp)
	return resp, err
}

// Events returns recent events, optionally filtered by type.
func (c *Client) Events(ctx context.Context, limit int, eventType string) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if eventType != "" {
		q.Set("type", eventType)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
