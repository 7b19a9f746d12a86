// Package pipeline serializes presentation of feedback messages.
//
// An arbitrary batch of messages is enqueued and shown one at a time: a
// message's response is submitted to the backend before the next message is
// handed to the display surface. Submission is fire-and-forget — a failed
// network call is logged and the pipeline advances regardless.
package pipeline

import (
	"context"
	"sync"

	"github.com/tgrady18/EchoedSDK/pkg/api"
	"github.com/tgrady18/EchoedSDK/pkg/bus"
	"github.com/tgrady18/EchoedSDK/pkg/logger"
)

// State is the pipeline's presentation state.
type State string

const (
	StateIdle       State = "idle"
	StatePresenting State = "presenting"
)

// Backend is the narrow slice of the backend client the pipeline needs.
type Backend interface {
	RecordDisplay(ctx context.Context, messageID string) error
	SendMessageResponse(ctx context.Context, messageID, response string, tagSnapshot map[string]any) error
}

// Pipeline owns the pending-message queue. All state transitions happen
// under one mutex; the display surface runs on the far side of the bus.
type Pipeline struct {
	mu      sync.Mutex
	state   State
	queue   []api.Message
	current *api.Message

	surface  *bus.SurfaceBus
	backend  Backend
	snapshot func() map[string]any

	wg sync.WaitGroup
}

// New creates an idle pipeline. snapshot supplies the tag view attached to
// each response submission; it may be nil.
func New(surface *bus.SurfaceBus, backend Backend, snapshot func() map[string]any) *Pipeline {
	if snapshot == nil {
		snapshot = func() map[string]any { return nil }
	}
	return &Pipeline{
		state:    StateIdle,
		surface:  surface,
		backend:  backend,
		snapshot: snapshot,
	}
}

// Start consumes responses from the surface bus until ctx is canceled or
// the bus closes.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		for {
			resp, ok := p.surface.ConsumeResponse(ctx)
			if !ok {
				return
			}
			p.Resolve(resp)
		}
	}()
}

// State returns the current presentation state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// QueueLen returns the number of queued (not yet displayed) messages.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Present enqueues messages for sequential display. Messages from a later
// call are appended after any still-queued earlier ones, never interleaved.
// An empty batch is a no-op. If the pipeline is already draining, no new
// display is triggered; the batch simply joins the queue.
func (p *Pipeline) Present(messages []api.Message) {
	if len(messages) == 0 {
		return
	}

	p.mu.Lock()
	p.queue = append(p.queue, messages...)
	logger.DebugCF("pipeline", "Messages enqueued",
		map[string]any{"added": len(messages), "queued": len(p.queue)})

	if p.state == StatePresenting {
		p.mu.Unlock()
		return
	}
	next := p.dequeueLocked()
	p.mu.Unlock()

	p.display(next)
}

// Resolve handles the response for the currently displayed message: the
// submission is dispatched (never awaited), then the next queued message is
// displayed, or the pipeline returns to idle.
func (p *Pipeline) Resolve(resp bus.Response) {
	p.mu.Lock()
	if p.state != StatePresenting || p.current == nil {
		p.mu.Unlock()
		logger.WarnCF("pipeline", "Dropping response with nothing displayed",
			map[string]any{"message_id": resp.MessageID})
		return
	}
	if resp.MessageID != "" && resp.MessageID != p.current.ID {
		p.mu.Unlock()
		logger.WarnCF("pipeline", "Dropping response for a different message",
			map[string]any{"got": resp.MessageID, "displayed": p.current.ID})
		return
	}

	answered := *p.current
	p.current = nil

	var next *api.Message
	if len(p.queue) > 0 {
		next = p.dequeueLocked()
	} else {
		p.state = StateIdle
	}
	p.mu.Unlock()

	// Dispatch the submission before the next message is shown. Completion
	// is not awaited and may race with later submissions.
	p.submit(answered.ID, resp.Text)

	if next != nil {
		p.display(next)
	}
}

// dequeueLocked pops the queue head and marks the pipeline presenting.
// Callers hold the mutex and the queue is non-empty.
func (p *Pipeline) dequeueLocked() *api.Message {
	msg := p.queue[0]
	p.queue = p.queue[1:]
	p.state = StatePresenting
	p.current = &msg
	return &msg
}

func (p *Pipeline) display(msg *api.Message) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.backend.RecordDisplay(context.Background(), msg.ID); err != nil {
			logger.WarnCF("pipeline", "Recording display failed",
				map[string]any{"message_id": msg.ID, "error": err.Error()})
		}
	}()

	if err := p.surface.PublishPrompt(context.Background(), bus.Prompt{Message: *msg}); err != nil {
		logger.ErrorCF("pipeline", "Publishing prompt failed",
			map[string]any{"message_id": msg.ID, "error": err.Error()})
	}
}

func (p *Pipeline) submit(messageID, response string) {
	snapshot := p.snapshot()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.backend.SendMessageResponse(context.Background(), messageID, response, snapshot); err != nil {
			logger.WarnCF("pipeline", "Response submission failed, dropping",
				map[string]any{"message_id": messageID, "error": err.Error()})
		}
	}()
}

// Wait blocks until all dispatched backend calls have completed. Intended
// for tests and orderly shutdown.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
