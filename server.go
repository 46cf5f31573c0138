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

package stitch

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// A Server accepts inbound requests for one service from an endpoint.
type Server[SReq, SRes any] struct {
	endpoint Endpoint[SReq, SRes]
}

// NewServer wraps an endpoint whose wire types match the service's
// aggregate request and response unions.
func NewServer[SReq, SRes any](endpoint Endpoint[SReq, SRes]) *Server[SReq, SRes] {
	return &Server[SReq, SRes]{endpoint: endpoint}
}

// Accept blocks until the next request arrives and yields it together
// with the channel for its reply path. Each accepted request should be
// handed to exactly one spec Dispatch call, usually on its own goroutine
// so a slow request never blocks the others.
func (s *Server[SReq, SRes]) Accept(ctx context.Context) (SReq, *Channel[SReq, SRes], error) {
	req, sender, receiver, err := s.endpoint.Accept(ctx)
	if err != nil {
		var zero SReq
		return zero, nil, asTypedError(err, CodeTransport)
	}
	return req, NewChannel(sender, receiver), nil
}

// Close releases the underlying endpoint.
func (s *Server[SReq, SRes]) Close() error {
	return s.endpoint.Close()
}

// A Channel represents exactly one accepted request's reply path plus,
// for update-bearing patterns, the inbound update path. The first message
// itself is decoded by Accept and handed to the handler separately. A
// channel is consumed by exactly one Dispatch call; a second Dispatch
// fails without touching the wire.
type Channel[SReq, SRes any] struct {
	sender   Sender[SRes]
	receiver Receiver[SReq]
	consumed *atomic.Bool
}

// NewChannel pairs a reply sender with an update receiver. Most callers
// get channels from Server.Accept instead.
func NewChannel[SReq, SRes any](sender Sender[SRes], receiver Receiver[SReq]) *Channel[SReq, SRes] {
	return &Channel[SReq, SRes]{
		sender:   sender,
		receiver: receiver,
		consumed: new(atomic.Bool),
	}
}

func (c *Channel[SReq, SRes]) consume() error {
	if !c.consumed.CompareAndSwap(false, true) {
		return errorf(CodeUnknown, "server channel already consumed")
	}
	return nil
}

// MapChannel narrows a channel bound to a parent service into a channel
// for one constituent child, for handlers that have classified an
// accepted request and delegate to the matching child handler. Child
// responses widen into the parent union on send; inbound parent updates
// narrow to the child's types, failing with CodeMapping for foreign
// variants. The mapped channel shares the original's one-shot consumption
// state and its resources.
func MapChannel[PReq, PRes, CReq, CRes any](
	ch *Channel[PReq, PRes],
	mapping ServiceMapping[PReq, PRes, CReq, CRes],
) *Channel[CReq, CRes] {
	return &Channel[CReq, CRes]{
		sender:   &mappedSender[CRes, PRes]{inner: ch.sender, wrap: mapping.WrapResponse},
		receiver: &mappedReceiver[CReq, PReq]{inner: ch.receiver, unwrap: mapping.UnwrapRequest},
		consumed: ch.consumed,
	}
}

// A HandlerFunc routes one accepted request: it either dispatches the
// request directly via its spec or maps the channel to a nested child
// service and delegates.
type HandlerFunc[SReq, SRes any] func(ctx context.Context, req SReq, ch *Channel[SReq, SRes]) error

// A ServeOption configures the Serve accept loop.
type ServeOption interface {
	applyToServe(*serveConfig)
}

type serveConfig struct {
	logger *slog.Logger
}

type loggerOption struct {
	logger *slog.Logger
}

// WithLogger configures the accept loop to report per-request failures to
// the given logger instead of slog.Default().
func WithLogger(logger *slog.Logger) ServeOption {
	return &loggerOption{logger: logger}
}

func (o *loggerOption) applyToServe(cfg *serveConfig) {
	cfg.logger = o.logger
}

// Serve accepts requests until the context ends or the endpoint closes,
// running each accepted request's handler on its own goroutine. A failing
// or slow request never affects the others, and handler failures are
// logged rather than terminating the loop. Serve returns nil when the
// endpoint closes and the context's error when it is canceled.
func Serve[SReq, SRes any](
	ctx context.Context,
	endpoint Endpoint[SReq, SRes],
	handle HandlerFunc[SReq, SRes],
	opts ...ServeOption,
) error {
	cfg := serveConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt.applyToServe(&cfg)
	}
	server := NewServer(endpoint)
	for {
		req, ch, err := server.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if CodeOf(err) == CodeConnectionClosed {
				return nil
			}
			cfg.logger.WarnContext(ctx, "rpc accept failed", slog.Any("error", err))
			continue
		}
		go func() {
			if err := handle(ctx, req, ch); err != nil {
				cfg.logger.WarnContext(ctx, "rpc request failed", slog.Any("error", err))
			}
		}()
	}
}
