package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNotConfigured is returned by every call made before the client has an
// API key and company id.
var ErrNotConfigured = errors.New("echoed backend not configured: call Initialize first")

const defaultTimeout = 10 * time.Second

// Client talks to the Echoed backend. It is stateless apart from its
// credentials; every method is safe for concurrent use. Credentials may be
// replaced while calls are in flight, so reads and writes go through the
// mutex.
type Client struct {
	baseURL    string
	deviceID   string
	httpClient *http.Client

	mu        sync.RWMutex
	apiKey    string
	companyID string
}

// NewClient creates a backend client. apiKey and companyID may be empty, in
// which case every call fails with ErrNotConfigured until Configure is
// called.
func NewClient(baseURL, apiKey, companyID, deviceID string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		companyID:  companyID,
		deviceID:   deviceID,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Configure sets the credentials after construction.
func (c *Client) Configure(apiKey, companyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = apiKey
	c.companyID = companyID
}

// creds snapshots the credentials so a concurrent Configure cannot tear a
// request's key/company pair.
func (c *Client) creds() (apiKey, companyID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey, c.companyID
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	apiKey, companyID := c.creds()
	return apiKey != "" && companyID != ""
}

// RecordAnchorHit tells the backend that an anchor fired.
func (c *Client) RecordAnchorHit(ctx context.Context, anchorID string) error {
	_, companyID := c.creds()
	body := struct {
		CompanyID string `json:"companyId"`
		AnchorID  string `json:"anchorId"`
	}{companyID, anchorID}
	return c.post(ctx, "/v1/anchors/hit", body, nil)
}

// FetchMessages asks the backend for the messages matching an anchor given
// the current tag snapshot.
func (c *Client) FetchMessages(ctx context.Context, anchorID string, tagSnapshot map[string]any) ([]Message, error) {
	_, companyID := c.creds()
	body := struct {
		CompanyID string         `json:"companyId"`
		AnchorID  string         `json:"anchorId"`
		UserTags  map[string]any `json:"userTags"`
		DeviceID  string         `json:"deviceId"`
	}{companyID, anchorID, tagSnapshot, c.deviceID}

	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.post(ctx, "/v1/messages/fetch", body, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// RecordDisplay tells the backend that a message reached the screen.
func (c *Client) RecordDisplay(ctx context.Context, messageID string) error {
	_, companyID := c.creds()
	body := struct {
		CompanyID string `json:"companyId"`
		MessageID string `json:"messageId"`
		DeviceID  string `json:"deviceId"`
	}{companyID, messageID, c.deviceID}
	return c.post(ctx, "/v1/messages/display", body, nil)
}

// SendMessageResponse submits the user's answer to a message.
func (c *Client) SendMessageResponse(ctx context.Context, messageID, response string, tagSnapshot map[string]any) error {
	_, companyID := c.creds()
	body := struct {
		CompanyID string         `json:"companyId"`
		MessageID string         `json:"messageId"`
		Response  string         `json:"response"`
		UserTags  map[string]any `json:"userTags"`
	}{companyID, messageID, response, tagSnapshot}
	return c.post(ctx, "/v1/messages/response", body, nil)
}

// SyncTags pushes the flat tag snapshot to the backend.
func (c *Client) SyncTags(ctx context.Context, tagSnapshot map[string]any) error {
	_, companyID := c.creds()
	body := struct {
		CompanyID string         `json:"companyId"`
		UserTags  map[string]any `json:"userTags"`
	}{companyID, tagSnapshot}
	return c.post(ctx, "/v1/tags/sync", body, nil)
}

// FetchAnchors lists known anchor ids (admin/debug).
func (c *Client) FetchAnchors(ctx context.Context) ([]string, error) {
	var anchors []string
	if err := c.get(ctx, "/v1/anchors", &anchors); err != nil {
		return nil, err
	}
	return anchors, nil
}

// FetchRuleSets lists the server-side targeting rules (admin/debug).
func (c *Client) FetchRuleSets(ctx context.Context) ([]RuleSet, error) {
	var ruleSets []RuleSet
	if err := c.get(ctx, "/v1/rulesets", &ruleSets); err != nil {
		return nil, err
	}
	return ruleSets, nil
}

// FetchTagDefinitions lists the tags the backend has observed (admin/debug).
func (c *Client) FetchTagDefinitions(ctx context.Context) ([]TagDefinition, error) {
	var defs []TagDefinition
	if err := c.get(ctx, "/v1/tags/definitions", &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	apiKey, companyID := c.creds()
	if apiKey == "" || companyID == "" {
		return ErrNotConfigured
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	apiKey, companyID := c.creds()
	if apiKey == "" || companyID == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?companyId="+companyID, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s returned %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}
