package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tgrady18/EchoedSDK/pkg/api"
	"github.com/tgrady18/EchoedSDK/pkg/bus"
	"github.com/tgrady18/EchoedSDK/pkg/config"
	"github.com/tgrady18/EchoedSDK/pkg/echoed"
	"github.com/tgrady18/EchoedSDK/pkg/tags"
)

// scriptedBackend serves a fixed message set and records every call path.
type scriptedBackend struct {
	mu     sync.Mutex
	paths  []string
	server *httptest.Server
}

func newScriptedBackend(t *testing.T, messages map[string][]api.Message) *scriptedBackend {
	t.Helper()
	sb := &scriptedBackend{}
	sb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sb.mu.Lock()
		sb.paths = append(sb.paths, r.URL.Path)
		sb.mu.Unlock()

		if r.URL.Path == "/v1/messages/fetch" {
			var body struct {
				AnchorID string `json:"anchorId"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]any{"messages": messages[body.AnchorID]})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sb.server.Close)
	return sb
}

func (sb *scriptedBackend) count(path string) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	n := 0
	for _, p := range sb.paths {
		if p == path {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T, dataDir, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.BaseURL = baseURL
	cfg.APIKey = "e2e-key"
	cfg.CompanyID = "e2e-co"
	cfg.LogLevel = "error"
	return cfg
}

// TestFullLifecycle walks the whole SDK flow: configure, tag, hit an anchor,
// answer the prompt chain, identify a customer, then restart the process and
// check that identity and tags survived on disk.
func TestFullLifecycle(t *testing.T) {
	dataDir := t.TempDir()
	backend := newScriptedBackend(t, map[string][]api.Message{
		"checkout_done": {
			{ID: "rate", AnchorID: "checkout_done", Type: api.MessageThumbsUpDown, Title: "Rate checkout"},
			{ID: "why", AnchorID: "checkout_done", Type: api.MessageTextInput, Title: "What could be better?"},
		},
	})

	// First run: config file roundtrip, then the SDK proper.
	cfgPath := filepath.Join(dataDir, "config.json")
	if err := config.SaveConfig(cfgPath, testConfig(t, dataDir, backend.server.URL)); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Configured() {
		t.Fatal("loaded config lost credentials")
	}

	sdk, err := echoed.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	deviceID := sdk.DeviceID()

	sdk.OnForeground()
	sdk.SetUserTag("visits", tags.Number(3))
	sdk.SetUserTag("plan", tags.String("pro"))
	sdk.SetCustomer("cust-9", "Grace", "grace@example.com")

	sdk.HitAnchor("checkout_done")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for _, want := range []struct{ id, answer string }{
		{"rate", "up"},
		{"why", "nothing, it was great"},
	} {
		p, ok := sdk.Surface().ConsumePrompt(ctx)
		if !ok {
			t.Fatalf("no prompt for %s", want.id)
		}
		if p.Message.ID != want.id {
			t.Fatalf("prompt = %s, want %s", p.Message.ID, want.id)
		}
		if err := sdk.Surface().PublishResponse(ctx, bus.Response{MessageID: want.id, Text: want.answer}); err != nil {
			t.Fatalf("PublishResponse: %v", err)
		}
	}

	waitForCount(t, backend, "/v1/messages/response", 2)
	waitForCount(t, backend, "/v1/anchors/hit", 1)

	sdk.OnBackground()
	sdk.Close()

	// Second run against the same data dir: everything local persists.
	sdk2, err := echoed.New(testConfig(t, dataDir, backend.server.URL))
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	defer sdk2.Close()

	if got := sdk2.DeviceID(); got != deviceID {
		t.Errorf("device id changed across restart: %s -> %s", deviceID, got)
	}
	if v, ok := sdk2.GetUserTagValue("plan"); !ok || v.String() != "pro" {
		t.Errorf("plan tag after restart = %v, ok=%v", v, ok)
	}
	if v, ok := sdk2.GetUserTagValue(echoed.KeyCustomerName); !ok || v.String() != "Grace" {
		t.Errorf("customer name after restart = %v, ok=%v", v, ok)
	}
	if !sdk2.HasHitAnchor("checkout_done") {
		t.Error("anchor hit not persisted across restart")
	}
	if v, ok := sdk2.GetUserTagValue(tags.KeySessionCount); !ok {
		t.Error("session count missing after restart")
	} else if count, _ := v.Float(); count < 1 {
		t.Errorf("session count after restart = %v", count)
	}
}

// TestSequentialAnchors checks that messages from a second anchor hit queue
// behind an unanswered prompt instead of interleaving.
func TestSequentialAnchors(t *testing.T) {
	dataDir := t.TempDir()
	backend := newScriptedBackend(t, map[string][]api.Message{
		"first":  {{ID: "a1", AnchorID: "first", Type: api.MessageYesNo, Title: "First?"}},
		"second": {{ID: "b1", AnchorID: "second", Type: api.MessageYesNo, Title: "Second?"}},
	})

	sdk, err := echoed.New(testConfig(t, dataDir, backend.server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sdk.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sdk.HitAnchor("first")
	p, ok := sdk.Surface().ConsumePrompt(ctx)
	if !ok || p.Message.ID != "a1" {
		t.Fatalf("first prompt = %+v, ok=%v", p, ok)
	}

	// Second hit while the first prompt is unanswered.
	sdk.HitAnchor("second")
	waitForCount(t, backend, "/v1/messages/fetch", 2)

	short, shortCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer shortCancel()
	if p2, ok := sdk.Surface().ConsumePrompt(short); ok {
		t.Fatalf("second prompt %s delivered before first was answered", p2.Message.ID)
	}

	if err := sdk.Surface().PublishResponse(ctx, bus.Response{MessageID: "a1", Text: "yes"}); err != nil {
		t.Fatalf("PublishResponse: %v", err)
	}
	p2, ok := sdk.Surface().ConsumePrompt(ctx)
	if !ok || p2.Message.ID != "b1" {
		t.Fatalf("queued prompt = %+v, ok=%v", p2, ok)
	}
	sdk.Surface().PublishResponse(ctx, bus.Response{MessageID: "b1", Text: "no"})
	waitForCount(t, backend, "/v1/messages/response", 2)
}

func waitForCount(t *testing.T, backend *scriptedBackend, path string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if backend.count(path) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d calls to %s, saw %d", want, path, backend.count(path))
}
