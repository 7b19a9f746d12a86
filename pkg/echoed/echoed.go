// Package echoed ties the SDK together: one context object per process
// owning the tag store, device identity, backend client and message
// pipeline, and exposing the public entry points to the host application.
package echoed

import (
	"context"
	"fmt"
	"time"

	"github.com/tgrady18/EchoedSDK/pkg/anchors"
	"github.com/tgrady18/EchoedSDK/pkg/api"
	"github.com/tgrady18/EchoedSDK/pkg/bus"
	"github.com/tgrady18/EchoedSDK/pkg/config"
	"github.com/tgrady18/EchoedSDK/pkg/identity"
	"github.com/tgrady18/EchoedSDK/pkg/logger"
	"github.com/tgrady18/EchoedSDK/pkg/pipeline"
	"github.com/tgrady18/EchoedSDK/pkg/tags"
)

// Customer identity keys. Reserved-prefixed: only SetCustomer writes them.
const (
	KeyCustomerID    = "echoed_customer_id"
	KeyCustomerName  = "echoed_customer_name"
	KeyCustomerEmail = "echoed_customer_email"
)

// SDK is the per-process context object. Construct one at startup with New,
// attach a display surface to Surface(), and call the entry points from the
// host application. All failure visibility is through logs: fire-and-forget
// operations never return errors.
type SDK struct {
	cfg      *config.Config
	store    *tags.Store
	tracker  *anchors.Tracker
	client   *api.Client
	surface  *bus.SurfaceBus
	pipeline *pipeline.Pipeline
	deviceID string

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the SDK from config. The device identifier and local stores
// are required for operation, so their failures are fatal here rather than
// deferred to individual calls.
func New(cfg *config.Config) (*SDK, error) {
	applyLogLevel(cfg.LogLevel)

	deviceID, err := identity.DeviceID(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("device identity: %w", err)
	}

	store, err := tags.Open(cfg.DataDir, time.Duration(cfg.SessionTimeoutSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("tag store: %w", err)
	}

	tracker, err := anchors.Open(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("anchor tracker: %w", err)
	}

	client := api.NewClient(cfg.BaseURL, cfg.APIKey, cfg.CompanyID, deviceID)
	surface := bus.NewSurfaceBus()

	s := &SDK{
		cfg:      cfg,
		store:    store,
		tracker:  tracker,
		client:   client,
		surface:  surface,
		pipeline: pipeline.New(surface, client, store.NetworkView),
		deviceID: deviceID,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.pipeline.Start(s.ctx)

	if cfg.SyncCron != "" {
		if err := s.startSyncScheduler(cfg.SyncCron); err != nil {
			s.Close()
			return nil, err
		}
	}

	logger.InfoCF("echoed", "SDK ready",
		map[string]any{"device_id": deviceID, "configured": client.Configured()})
	return s, nil
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	case "", "info":
		logger.SetLevel(logger.INFO)
	}
}

// Initialize supplies backend credentials after construction. Until both
// are set, every backend call fails with a not-configured outcome.
func (s *SDK) Initialize(apiKey, companyID string) {
	s.client.Configure(apiKey, companyID)
	logger.InfoC("echoed", "Backend configured")
}

// Surface returns the bus a display surface attaches to.
func (s *SDK) Surface() *bus.SurfaceBus { return s.surface }

// DeviceID returns the stable per-install identifier.
func (s *SDK) DeviceID() string { return s.deviceID }

// HitAnchor fires a trigger point: the hit is recorded, matching messages
// are fetched with the current tag snapshot, and any results join the
// pipeline. A failed fetch silently results in nothing being displayed.
func (s *SDK) HitAnchor(anchorID string) {
	s.tracker.MarkHit(anchorID)

	go func() {
		if err := s.client.RecordAnchorHit(s.ctx, anchorID); err != nil {
			logger.WarnCF("echoed", "Recording anchor hit failed",
				map[string]any{"anchor_id": anchorID, "error": err.Error()})
		}
	}()

	go func() {
		messages, err := s.client.FetchMessages(s.ctx, anchorID, s.store.NetworkView())
		if err != nil {
			logger.WarnCF("echoed", "Message fetch failed, nothing to display",
				map[string]any{"anchor_id": anchorID, "error": err.Error()})
			return
		}
		if len(messages) == 0 {
			logger.DebugCF("echoed", "No messages for anchor",
				map[string]any{"anchor_id": anchorID})
			return
		}
		s.pipeline.Present(messages)
	}()
}

// HasHitAnchor reports whether an anchor has ever fired on this install.
func (s *SDK) HasHitAnchor(anchorID string) bool { return s.tracker.HasHit(anchorID) }

// AnchorHits lists every anchor that has fired, in first-hit order.
func (s *SDK) AnchorHits() []string { return s.tracker.Hits() }

// SetUserTag writes a user tag. Reserved keys are rejected and logged.
func (s *SDK) SetUserTag(key string, v tags.Value) { s.store.SetUserTag(key, v) }

// SetUserTagRaw writes a user tag from a dynamically-typed value, rejecting
// type mismatches.
func (s *SDK) SetUserTagRaw(key string, raw any, t tags.Type) {
	s.store.SetUserTagRaw(key, raw, t)
}

// GetUserTagValue returns the stored value for key, if present.
func (s *SDK) GetUserTagValue(key string) (tags.Value, bool) { return s.store.Value(key) }

// GetUserTagType returns the declared type for key, if present.
func (s *SDK) GetUserTagType(key string) (tags.Type, bool) { return s.store.TypeOf(key) }

// GetAllUserTags returns every tag in the store.
func (s *SDK) GetAllUserTags() []tags.Tag { return s.store.All() }

// RemoveUserTag removes a user tag; protected categories are a logged no-op.
func (s *SDK) RemoveUserTag(key string) { s.store.Remove(key) }

// ClearAllUserTags removes every user tag, preserving internal and customer
// tags unconditionally.
func (s *SDK) ClearAllUserTags() { s.store.ClearUserTags() }

// SetCustomer records the logged-in customer's identity. Empty fields are
// left unset. The updated snapshot is pushed to the backend.
func (s *SDK) SetCustomer(id, name, email string) {
	if id != "" {
		s.store.SetCustomerTag(KeyCustomerID, tags.String(id))
	}
	if name != "" {
		s.store.SetCustomerTag(KeyCustomerName, tags.String(name))
	}
	if email != "" {
		s.store.SetCustomerTag(KeyCustomerEmail, tags.String(email))
	}
	s.SyncTags()
}

// ResetCustomer removes all customer identity tags (logout flow) and pushes
// the updated snapshot.
func (s *SDK) ResetCustomer() {
	s.store.ClearCustomerTags()
	s.SyncTags()
}

// OnForeground signals a foreground transition for session bookkeeping.
func (s *SDK) OnForeground() { s.store.OnForeground() }

// OnBackground signals a background transition for session bookkeeping.
func (s *SDK) OnBackground() { s.store.OnBackground() }

// SyncTags pushes the flat tag snapshot to the backend, fire-and-forget.
func (s *SDK) SyncTags() {
	snapshot := s.store.NetworkView()
	go func() {
		if err := s.client.SyncTags(s.ctx, snapshot); err != nil {
			logger.WarnCF("echoed", "Tag sync failed", map[string]any{"error": err.Error()})
		}
	}()
}

// Close releases the SDK: outstanding backend calls are drained, the
// surface bus is closed, and local stores are released.
func (s *SDK) Close() {
	s.cancel()
	s.surface.Close()
	s.pipeline.Wait()
	if err := s.store.Close(); err != nil {
		logger.WarnCF("echoed", "Closing tag store failed", map[string]any{"error": err.Error()})
	}
	if err := s.tracker.Close(); err != nil {
		logger.WarnCF("echoed", "Closing anchor tracker failed", map[string]any{"error": err.Error()})
	}
}
