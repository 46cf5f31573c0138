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

// Package mempipe is an in-process stitch transport: logical channels are
// pairs of Go channels, and messages move between goroutines by value
// without any encoding. It backs tests and single-process deployments of
// services that may later move behind a network transport unchanged.
package mempipe

import (
	"context"
	"errors"
	"io"
	"sync"

	"stitchrpc.dev/stitch"
)

var (
	errClosed         = errors.New("pipe closed")
	errSendAfterClose = errors.New("send after close")
)

func connClosedErr() *stitch.Error {
	return stitch.NewError(stitch.CodeConnectionClosed, errClosed)
}

// New creates a connected connection/endpoint pair for one service.
// buffer sets the capacity of the per-channel message queues and of the
// accept queue; zero means fully synchronous handoff.
func New[Req, Res any](buffer int) (*Conn[Req, Res], *Endpoint[Req, Res]) {
	p := &pipe[Req, Res]{
		accept: make(chan *channel[Req, Res], buffer),
		done:   make(chan struct{}),
		buffer: buffer,
	}
	return &Conn[Req, Res]{p: p}, &Endpoint[Req, Res]{p: p}
}

// pipe is the state shared by the two ends.
type pipe[Req, Res any] struct {
	accept    chan *channel[Req, Res]
	done      chan struct{}
	closeOnce sync.Once
	buffer    int
}

func (p *pipe[Req, Res]) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// channel is one logical channel's state. Each direction has a message
// queue owned by its sender and a release signal owned by its receiver.
type channel[Req, Res any] struct {
	requests   chan Req
	responses  chan Res
	clientDone chan struct{} // client released its receive side
	serverDone chan struct{} // server released its receive side
}

// Conn is the client side of an in-process pipe.
type Conn[Req, Res any] struct {
	p *pipe[Req, Res]
}

var _ stitch.Connection[int, string] = (*Conn[int, string])(nil)

// Open implements stitch.Connection. It blocks when the peer's accept
// queue is full.
func (c *Conn[Req, Res]) Open(ctx context.Context) (stitch.Sender[Req], stitch.Receiver[Res], error) {
	// Fail fast on a closed pipe even while the accept queue has room.
	select {
	case <-c.p.done:
		return nil, nil, connClosedErr()
	default:
	}
	ch := &channel[Req, Res]{
		requests:   make(chan Req, c.p.buffer),
		responses:  make(chan Res, c.p.buffer),
		clientDone: make(chan struct{}),
		serverDone: make(chan struct{}),
	}
	select {
	case c.p.accept <- ch:
	case <-c.p.done:
		return nil, nil, connClosedErr()
	case <-ctx.Done():
		return nil, nil, stitch.NewError(stitch.CodeTransport, ctx.Err())
	}
	sender := &sendHalf[Req]{ctx: ctx, queue: ch.requests, peerDone: ch.serverDone, connDone: c.p.done}
	receiver := &recvHalf[Res]{ctx: ctx, queue: ch.responses, done: ch.clientDone, connDone: c.p.done}
	return sender, receiver, nil
}

// Close implements stitch.Connection. Closing either end fails every
// channel still open on the pipe.
func (c *Conn[Req, Res]) Close() error {
	c.p.close()
	return nil
}

// Endpoint is the server side of an in-process pipe.
type Endpoint[Req, Res any] struct {
	p *pipe[Req, Res]
}

var _ stitch.Endpoint[int, string] = (*Endpoint[int, string])(nil)

// Accept implements stitch.Endpoint: it blocks for the next inbound
// channel and yields its first message plus the reply and update halves.
// Channels the client abandoned before sending anything are skipped; a
// single aborted channel is that channel's problem, never the
// endpoint's.
func (e *Endpoint[Req, Res]) Accept(ctx context.Context) (Req, stitch.Sender[Res], stitch.Receiver[Req], error) {
	var zero Req
	for {
		// Fail fast on a closed pipe even while channels are queued.
		select {
		case <-e.p.done:
			return zero, nil, nil, connClosedErr()
		default:
		}
		var ch *channel[Req, Res]
		select {
		case ch = <-e.p.accept:
		case <-e.p.done:
			return zero, nil, nil, connClosedErr()
		case <-ctx.Done():
			return zero, nil, nil, stitch.NewError(stitch.CodeTransport, ctx.Err())
		}
		select {
		case req, ok := <-ch.requests:
			if !ok {
				continue // half-closed before its first message
			}
			sender := &sendHalf[Res]{ctx: ctx, queue: ch.responses, peerDone: ch.clientDone, connDone: e.p.done}
			receiver := &recvHalf[Req]{ctx: ctx, queue: ch.requests, done: ch.serverDone, connDone: e.p.done}
			return req, sender, receiver, nil
		case <-ch.clientDone:
			continue // released before its first message
		case <-e.p.done:
			return zero, nil, nil, connClosedErr()
		case <-ctx.Done():
			return zero, nil, nil, stitch.NewError(stitch.CodeTransport, ctx.Err())
		}
	}
}

// Close implements stitch.Endpoint.
func (e *Endpoint[Req, Res]) Close() error {
	e.p.close()
	return nil
}

// sendHalf delivers messages into its direction's queue. Not safe for
// concurrent use, matching the stitch.Sender contract.
type sendHalf[T any] struct {
	ctx      context.Context
	queue    chan T
	peerDone <-chan struct{}
	connDone <-chan struct{}
	closed   bool
}

func (s *sendHalf[T]) Send(msg T) error {
	if s.closed {
		return stitch.NewError(stitch.CodeConnectionClosed, errSendAfterClose)
	}
	// Check for a released peer first so a send after the peer closed its
	// receive side fails even when the queue still has capacity.
	select {
	case <-s.peerDone:
		return connClosedErr()
	case <-s.connDone:
		return connClosedErr()
	default:
	}
	select {
	case s.queue <- msg:
		return nil
	case <-s.peerDone:
		return connClosedErr()
	case <-s.connDone:
		return connClosedErr()
	case <-s.ctx.Done():
		return stitch.NewError(stitch.CodeTransport, s.ctx.Err())
	}
}

func (s *sendHalf[T]) Close() error {
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	return nil
}

// recvHalf drains its direction's queue. Closing it releases the channel,
// which the peer's sender observes as CodeConnectionClosed.
type recvHalf[T any] struct {
	ctx       context.Context
	queue     chan T
	done      chan struct{}
	connDone  <-chan struct{}
	closeOnce sync.Once
}

func (r *recvHalf[T]) Receive() (T, error) {
	var zero T
	select {
	case msg, ok := <-r.queue:
		if !ok {
			return zero, io.EOF
		}
		return msg, nil
	case <-r.done:
		return zero, connClosedErr()
	case <-r.connDone:
		return zero, connClosedErr()
	case <-r.ctx.Done():
		return zero, stitch.NewError(stitch.CodeTransport, r.ctx.Err())
	}
}

func (r *recvHalf[T]) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}
