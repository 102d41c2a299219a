package taskboardsdk

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

// Client is a minimal Taskboard HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	Token      string
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

type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Stage       string    `json:"stage"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Page is a page and its board, as returned by the API.
type Page struct {
	ID             string     `json:"id"`
	OpenedAt       time.Time  `json:"opened_at"`
	LastSeen       time.Time  `json:"last_seen"`
	FormOpen       bool       `json:"form_open"`
	Entry          string     `json:"entry"`
	New            []Task     `json:"new"`
	InProgress     []Task     `json:"in_progress"`
	Archived       []Task     `json:"archived"`
	Token          string     `json:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

type PageSummary struct {
	ID       string    `json:"id"`
	OpenedAt time.Time `json:"opened_at"`
	LastSeen time.Time `json:"last_seen"`
	Tasks    int       `json:"tasks"`
}

// Change describes what one board event did.
type Change struct {
	Type        string `json:"type"`
	TaskID      string `json:"task_id,omitempty"`
	Description string `json:"description,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Region      string `json:"region,omitempty"`
	FormOpen    bool   `json:"form_open"`
	Reason      string `json:"reason,omitempty"`
}

type ChangeResult struct {
	Change Change `json:"change"`
	Page   Page   `json:"page"`
}

// Event represents a journal entry.
type Event struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	PageID  string         `json:"page_id"`
	TaskID  string         `json:"task_id,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Payload map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// OpenPage opens a page. When the server issues page tokens the returned
// Page carries one.
func (c *Client) OpenPage(ctx context.Context) (Page, error) {
	var resp Page
	err := c.do(ctx, http.MethodPost, "pages", nil, &resp)
	return resp, err
}

func (c *Client) ListPages(ctx context.Context) ([]PageSummary, error) {
	var resp []PageSummary
	err := c.do(ctx, http.MethodGet, "pages", nil, &resp)
	return resp, err
}

func (c *Client) GetPage(ctx context.Context, pageID string) (Page, error) {
	var resp Page
	err := c.do(ctx, http.MethodGet, pagePath(pageID, ""), nil, &resp)
	return resp, err
}

func (c *Client) ClosePage(ctx context.Context, pageID string) error {
	return c.do(ctx, http.MethodDelete, pagePath(pageID, ""), nil, nil)
}

func (c *Client) ToggleForm(ctx context.Context, pageID string) (ChangeResult, error) {
	var resp ChangeResult
	err := c.do(ctx, http.MethodPost, pagePath(pageID, "form/toggle"), nil, &resp)
	return resp, err
}

func (c *Client) SetEntry(ctx context.Context, pageID, text string) (ChangeResult, error) {
	var resp ChangeResult
	err := c.do(ctx, http.MethodPut, pagePath(pageID, "entry"), map[string]any{"text": text}, &resp)
	return resp, err
}

func (c *Client) Save(ctx context.Context, pageID string) (ChangeResult, error) {
	var resp ChangeResult
	err := c.do(ctx, http.MethodPost, pagePath(pageID, "save"), nil, &resp)
	return resp, err
}

func (c *Client) AddTask(ctx context.Context, pageID, text string) (ChangeResult, error) {
	var resp ChangeResult
	err := c.do(ctx, http.MethodPost, pagePath(pageID, "tasks"), map[string]any{"text": text}, &resp)
	return resp, err
}

// Click clicks a region. taskID names the clicked element for list
// containers and is ignored for triggers.
func (c *Client) Click(ctx context.Context, pageID, region, taskID string) (ChangeResult, error) {
	body := map[string]any{}
	if taskID != "" {
		body["task_id"] = taskID
	}
	var resp ChangeResult
	endpoint := pagePath(pageID, fmt.Sprintf("regions/%s/click", url.PathEscape(region)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Advance clicks a task in whichever container shows it.
func (c *Client) Advance(ctx context.Context, pageID, taskID string) (ChangeResult, error) {
	var resp ChangeResult
	endpoint := pagePath(pageID, fmt.Sprintf("tasks/%s/advance", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated journal listing, newest first.
func (c *Client) EventsPage(ctx context.Context, pageID string, limit int, evtType, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if evtType != "" {
		q.Set("type", evtType)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := pagePath(pageID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Export downloads the board in the given format (json, csv or pdf).
func (c *Client) Export(ctx context.Context, pageID, format string) ([]byte, error) {
	endpoint := pagePath(pageID, "export") + "?format=" + url.QueryEscape(format)
	var raw bytes.Buffer
	err := c.do(ctx, http.MethodGet, endpoint, nil, &raw)
	return raw.Bytes(), err
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
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err := io.Copy(dst, resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func pagePath(pageID, p string) string {
	out := "pages/" + url.PathEscape(pageID)
	if p != "" {
		out += "/" + strings.TrimLeft(p, "/")
	}
	return out
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath
}
