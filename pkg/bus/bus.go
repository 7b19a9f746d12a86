// Package bus decouples the message pipeline from whatever renders prompts.
//
// The pipeline publishes at most one Prompt at a time; a display surface
// (readline demo, websocket gateway, the host application) consumes it and
// publishes the user's Response when they answer.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed SurfaceBus.
var ErrBusClosed = errors.New("surface bus closed")

type SurfaceBus struct {
	prompts   chan Prompt
	responses chan Response
	done      chan struct{}
	closed    atomic.Bool
}

func NewSurfaceBus() *SurfaceBus {
	return &SurfaceBus{
		// The pipeline never has more than one prompt outstanding, but a
		// small buffer keeps publishers from blocking on slow surfaces.
		prompts:   make(chan Prompt, 8),
		responses: make(chan Response, 8),
		done:      make(chan struct{}),
	}
}

func (sb *SurfaceBus) PublishPrompt(ctx context.Context, p Prompt) error {
	if sb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case sb.prompts <- p:
		return nil
	case <-sb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sb *SurfaceBus) ConsumePrompt(ctx context.Context) (Prompt, bool) {
	select {
	case p, ok := <-sb.prompts:
		return p, ok
	case <-sb.done:
		return Prompt{}, false
	case <-ctx.Done():
		return Prompt{}, false
	}
}

func (sb *SurfaceBus) PublishResponse(ctx context.Context, r Response) error {
	if sb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case sb.responses <- r:
		return nil
	case <-sb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sb *SurfaceBus) ConsumeResponse(ctx context.Context) (Response, bool) {
	select {
	case r, ok := <-sb.responses:
		return r, ok
	case <-sb.done:
		return Response{}, false
	case <-ctx.Done():
		return Response{}, false
	}
}

func (sb *SurfaceBus) Close() {
	if sb.closed.CompareAndSwap(false, true) {
		close(sb.done)
	}
}
