package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// recordingServer captures every request the client makes.
type recordingServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	server   *httptest.Server
}

type capturedRequest struct {
	Method string
	Path   string
	APIKey string
	Body   map[string]any
}

func newRecordingServer(t *testing.T, respond func(path string, w http.ResponseWriter)) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured := capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			APIKey: r.Header.Get("X-API-Key"),
		}
		if r.Body != nil {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			captured.Body = body
		}
		rs.mu.Lock()
		rs.requests = append(rs.requests, captured)
		rs.mu.Unlock()

		if respond != nil {
			respond(r.URL.Path, w)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rs.server.Close)
	return rs
}

func (rs *recordingServer) last(t *testing.T) capturedRequest {
	t.Helper()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.requests) == 0 {
		t.Fatal("no requests captured")
	}
	return rs.requests[len(rs.requests)-1]
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("http://unused", "", "", "device-1")

	if err := c.RecordAnchorHit(context.Background(), "a"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RecordAnchorHit = %v, want ErrNotConfigured", err)
	}
	if _, err := c.FetchMessages(context.Background(), "a", nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("FetchMessages = %v, want ErrNotConfigured", err)
	}
	if err := c.SyncTags(context.Background(), nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SyncTags = %v, want ErrNotConfigured", err)
	}
	if _, err := c.FetchAnchors(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("FetchAnchors = %v, want ErrNotConfigured", err)
	}

	c.Configure("key", "acme")
	if !c.Configured() {
		t.Error("client should be configured after Configure")
	}
}

func TestRecordAnchorHit_RequestShape(t *testing.T) {
	rs := newRecordingServer(t, nil)
	c := NewClient(rs.server.URL, "key-1", "acme", "device-1")

	if err := c.RecordAnchorHit(context.Background(), "post_purchase"); err != nil {
		t.Fatalf("RecordAnchorHit: %v", err)
	}

	req := rs.last(t)
	if req.Method != http.MethodPost || req.Path != "/v1/anchors/hit" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	if req.APIKey != "key-1" {
		t.Errorf("X-API-Key = %q", req.APIKey)
	}
	if req.Body["companyId"] != "acme" || req.Body["anchorId"] != "post_purchase" {
		t.Errorf("body = %v", req.Body)
	}
}

func TestFetchMessages(t *testing.T) {
	rs := newRecordingServer(t, func(path string, w http.ResponseWriter) {
		if path != "/v1/messages/fetch" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []Message{
				{ID: "m1", AnchorID: "post_purchase", Type: MessageYesNo, Title: "Happy?", Content: "Did it go well?"},
				{ID: "m2", AnchorID: "post_purchase", Type: MessageMultiChoice, Title: "Why?", Content: "Pick one", Options: []string{"price", "speed"}},
			},
		})
	})
	c := NewClient(rs.server.URL, "key-1", "acme", "device-1")

	msgs, err := c.FetchMessages(context.Background(), "post_purchase", map[string]any{"plan": "pro"})
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].Type != MessageMultiChoice {
		t.Errorf("decoded = %+v", msgs)
	}
	if len(msgs[1].Options) != 2 {
		t.Errorf("options = %v", msgs[1].Options)
	}

	req := rs.last(t)
	if req.Body["deviceId"] != "device-1" {
		t.Errorf("deviceId = %v", req.Body["deviceId"])
	}
	tagsVal, ok := req.Body["userTags"].(map[string]any)
	if !ok || tagsVal["plan"] != "pro" {
		t.Errorf("userTags = %v", req.Body["userTags"])
	}
}

func TestSendMessageResponse_RequestShape(t *testing.T) {
	rs := newRecordingServer(t, nil)
	c := NewClient(rs.server.URL, "key-1", "acme", "device-1")

	err := c.SendMessageResponse(context.Background(), "m1", "yes", map[string]any{"visits": 3.0})
	if err != nil {
		t.Fatalf("SendMessageResponse: %v", err)
	}

	req := rs.last(t)
	if req.Path != "/v1/messages/response" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Body["messageId"] != "m1" || req.Body["response"] != "yes" {
		t.Errorf("body = %v", req.Body)
	}
}

func TestAdminGets(t *testing.T) {
	rs := newRecordingServer(t, func(path string, w http.ResponseWriter) {
		switch path {
		case "/v1/anchors":
			json.NewEncoder(w).Encode([]string{"post_purchase", "onboarding_done"})
		case "/v1/rulesets":
			json.NewEncoder(w).Encode([]RuleSet{{
				ID:   "r1",
				Name: "pro users",
				Conditions: []Condition{
					{Key: "plan", Operation: "equals", Value: "pro"},
				},
				MessageIDs: []string{"m1"},
			}})
		case "/v1/tags/definitions":
			json.NewEncoder(w).Encode([]TagDefinition{{
				TagID: "plan", DataType: "string",
				AvailableOperations: []string{"equals", "notEquals"},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := NewClient(rs.server.URL, "key-1", "acme", "device-1")

	anchors, err := c.FetchAnchors(context.Background())
	if err != nil || len(anchors) != 2 {
		t.Errorf("anchors = %v, %v", anchors, err)
	}

	ruleSets, err := c.FetchRuleSets(context.Background())
	if err != nil || len(ruleSets) != 1 || ruleSets[0].Conditions[0].Operation != "equals" {
		t.Errorf("rulesets = %+v, %v", ruleSets, err)
	}

	defs, err := c.FetchTagDefinitions(context.Background())
	if err != nil || len(defs) != 1 || defs[0].TagID != "plan" {
		t.Errorf("tagdefs = %+v, %v", defs, err)
	}

	req := rs.last(t)
	if req.Method != http.MethodGet {
		t.Errorf("method = %s", req.Method)
	}
}

// Credentials can be swapped while requests are in flight; run with -race.
func TestConfigureDuringInFlightCalls(t *testing.T) {
	rs := newRecordingServer(t, nil)
	c := NewClient(rs.server.URL, "key-0", "acme", "device-1")

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			c.Configure(fmt.Sprintf("key-%d", i), "acme")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			c.SyncTags(context.Background(), map[string]any{"plan": "pro"})
			c.RecordAnchorHit(context.Background(), "a")
		}
	}()

	time.Sleep(200 * time.Millisecond)
	close(done)
	wg.Wait()

	if !c.Configured() {
		t.Error("client lost its credentials")
	}
	// every request carried a whole key, never a torn one
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, req := range rs.requests {
		if req.APIKey == "" || req.Body["companyId"] != "acme" {
			t.Fatalf("request with torn credentials: key=%q body=%v", req.APIKey, req.Body)
		}
	}
}

func TestServerErrorsSurface(t *testing.T) {
	rs := newRecordingServer(t, func(_ string, w http.ResponseWriter) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	c := NewClient(rs.server.URL, "bad-key", "acme", "device-1")

	if err := c.SyncTags(context.Background(), nil); err == nil {
		t.Error("expected error for 403 response")
	}
	if _, err := c.FetchMessages(context.Background(), "a", nil); err == nil {
		t.Error("expected error for 403 response")
	}
}
