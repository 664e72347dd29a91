package assetlinesdk

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

// Client is a minimal Assetline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Item is one requested line (partial API model).
type Item struct {
	ID       string `json:"id"`
	ItemName string `json:"item_name"`
	Brand    string `json:"brand,omitempty"`
	Quantity int    `json:"quantity"`
	Tracking string `json:"tracking"`
}

// Request is the API request model (partial).
type Request struct {
	ID          string         `json:"id"`
	RequesterID string         `json:"requester_id"`
	Status      string         `json:"status"`
	Items       []Item         `json:"items"`
	Registered  map[string]int `json:"registered,omitempty"`
	HandedOver  map[string]int `json:"handed_over,omitempty"`
}

// User is the API user model with the server-computed effective set.
type User struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Activity is one log entry.
type Activity struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Payload   string `json:"payload_json"`
}

// ReviewLine is one reviewer decision.
type ReviewLine struct {
	ItemID         string `json:"item_id"`
	Quantity       int    `json:"quantity"`
	StockAllocated bool   `json:"stock_allocated,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// AssignmentLine binds stock to an item in a handover.
type AssignmentLine struct {
	ItemID   string   `json:"item_id"`
	Quantity int      `json:"quantity,omitempty"`
	AssetIDs []string `json:"asset_ids,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type requestEnvelope struct {
	Request Request `json:"request"`
}

// SubmitRequest creates a request.
func (c *Client) SubmitRequest(ctx context.Context, items []map[string]any) (Request, error) {
	var resp requestEnvelope
	err := c.do(ctx, http.MethodPost, "v1/requests", map[string]any{"items": items}, &resp)
	return resp.Request, err
}

// GetRequest fetches one request.
func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var resp requestEnvelope
	err := c.do(ctx, http.MethodGet, "v1/requests/"+url.PathEscape(id), nil, &resp)
	return resp.Request, err
}

// ListRequests returns requests, optionally filtered by status.
func (c *Client) ListRequests(ctx context.Context, status string) ([]Request, error) {
	endpoint := "v1/requests"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Requests []Request `json:"requests"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Requests, err
}

// Action posts a body-less lifecycle action such as "cancel" or
// "submit-final".
func (c *Client) Action(ctx context.Context, requestID, action string) (Request, error) {
	var resp requestEnvelope
	endpoint := fmt.Sprintf("v1/requests/%s/%s", url.PathEscape(requestID), action)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Request, err
}

// Review posts a review-carrying action: "approve-logistic", "revise",
// "final-approve" or "final-revise".
func (c *Client) Review(ctx context.Context, requestID, action string, lines []ReviewLine) (Request, error) {
	var resp requestEnvelope
	endpoint := fmt.Sprintf("v1/requests/%s/%s", url.PathEscape(requestID), action)
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"lines": lines}, &resp)
	return resp.Request, err
}

// RegisterAssets records arrived units for an item.
func (c *Client) RegisterAssets(ctx context.Context, requestID, itemID string, count int, serials []string) (Request, error) {
	var resp requestEnvelope
	endpoint := fmt.Sprintf("v1/requests/%s/register-assets", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"item_id": itemID,
		"count":   count,
		"serials": serials,
	}, &resp)
	return resp.Request, err
}

// CreateHandover submits an assignment batch as one handover document.
func (c *Client) CreateHandover(ctx context.Context, requestID, recipient string, lines []AssignmentLine) (Request, error) {
	var resp requestEnvelope
	endpoint := fmt.Sprintf("v1/requests/%s/handovers", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"recipient": recipient,
		"lines":     lines,
	}, &resp)
	return resp.Request, err
}

// Me returns the authenticated user with effective permissions.
func (c *Client) Me(ctx context.Context) (User, []string, error) {
	var resp struct {
		User      User     `json:"user"`
		Effective []string `json:"effective_permissions"`
	}
	err := c.do(ctx, http.MethodGet, "v1/me", nil, &resp)
	return resp.User, resp.Effective, err
}

// Activities returns recent log entries.
func (c *Client) Activities(ctx context.Context, requestID string, limit int) ([]Activity, error) {
	endpoint := "v1/activities"
	params := url.Values{}
	if requestID != "" {
		params.Set("request_id", requestID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Activities []Activity `json:"activities"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Activities, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
