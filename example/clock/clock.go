// Copyright 2024-2026 The Stitch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clock is a self-contained ticking-clock service demonstrating
// the server-streaming pattern. A background task increments a shared
// counter on a fixed period and wakes every subscriber; each subscription
// streams the counter's current value once per wake. Delivery is
// last-value-wins: a slow subscriber may skip intermediate ticks but
// never observes a decreasing value, and never blocks the incrementer.
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stitchrpc.dev/stitch"
)

// TickRequest subscribes to the clock.
type TickRequest struct{}

// TickResponse carries the counter value at the time of a wake.
type TickResponse struct {
	Tick int `json:"tick"`
}

// Request is the service's aggregate request union.
type Request struct {
	Tick *TickRequest `json:"tick,omitempty"`
}

// Response is the service's aggregate response union.
type Response struct {
	Tick *TickResponse `json:"tick,omitempty"`
}

// TickSpec binds TickRequest to the server-streaming pattern and
// TickResponse.
var TickSpec = stitch.ServerStreamSpec[Request, Response, TickRequest, TickResponse]{
	WrapRequest:  func(req TickRequest) Request { return Request{Tick: &req} },
	WrapResponse: func(res TickResponse) Response { return Response{Tick: &res} },
	UnwrapResponse: func(res Response) (TickResponse, bool) {
		if res.Tick == nil {
			return TickResponse{}, false
		}
		return *res.Tick, true
	},
}

// Handler owns the shared counter and its broadcast wake signal. Handlers
// are shared by pointer between the ticker task and every subscription;
// the zero value is not usable, construct with NewHandler.
type Handler struct {
	mu   sync.RWMutex
	tick int
	wake chan struct{} // closed and replaced on every increment

	stop     chan struct{}
	stopOnce sync.Once
}

// NewHandler starts the periodic ticker. Stop releases it; a handler
// whose owner forgets to call Stop keeps its goroutine until process
// exit.
func NewHandler(period time.Duration) *Handler {
	h := &Handler{
		wake: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go h.run(period)
	return h
}

// Stop terminates the ticker task and ends every active subscription;
// subscribers observe a normal end of stream.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Handler) run(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.advance()
		case <-h.stop:
			return
		}
	}
}

// advance increments the counter and wakes all current waiters. The
// write lock is held only for the increment, never across any blocking
// operation.
func (h *Handler) advance() {
	h.mu.Lock()
	h.tick++
	close(h.wake)
	h.wake = make(chan struct{})
	h.mu.Unlock()
}

// current reads the counter and the wake channel that the next increment
// will close.
func (h *Handler) current() (int, <-chan struct{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tick, h.wake
}

// Handle routes one accepted clock request to its spec's dispatch.
func (h *Handler) Handle(ctx context.Context, req Request, ch *stitch.Channel[Request, Response]) error {
	switch {
	case req.Tick != nil:
		return TickSpec.Dispatch(ctx, ch, *req.Tick, h.onTick)
	}
	return fmt.Errorf("clock request with no variant set")
}

// onTick streams the counter to one subscriber: forward the current
// value, wait for the next wake, repeat. The subscription ends when the
// client releases the stream (Send fails) or the context ends.
func (h *Handler) onTick(ctx context.Context, _ TickRequest, stream *stitch.ServerStream[Response, TickResponse]) error {
	for {
		tick, wake := h.current()
		if err := stream.Send(TickResponse{Tick: tick}); err != nil {
			return err
		}
		select {
		case <-wake:
		case <-h.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Client is the typed client surface for the clock.
type Client struct {
	rpc *stitch.Client[Request, Response]
}

// NewClient wraps a client already bound (or mapped) to the clock
// service.
func NewClient(rpc *stitch.Client[Request, Response]) Client {
	return Client{rpc: rpc}
}

// Tick subscribes to the clock. The caller must Close the returned
// stream to cancel the subscription.
func (c Client) Tick(ctx context.Context) (*stitch.ServerStreamForClient[Response, TickResponse], error) {
	return TickSpec.Call(ctx, c.rpc, TickRequest{})
}
