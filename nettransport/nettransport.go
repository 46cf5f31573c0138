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

// Package nettransport runs stitch services over any net.Conn. Logical
// channels are multiplexed onto one connection as length-prefixed frames
// tagged with a channel id; messages are encoded with a pluggable codec.
// A background read loop per connection routes inbound frames to
// per-channel queues, so concurrent calls share the connection without
// blocking each other.
package nettransport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"stitchrpc.dev/stitch"
	"stitchrpc.dev/stitch/codec"
)

var errClosed = errors.New("transport closed")

func connClosedErr() *stitch.Error {
	return stitch.NewError(stitch.CodeConnectionClosed, errClosed)
}

// chanState is one logical channel's shared bookkeeping: its inbound
// queue and the released flag consulted by its sender.
type chanState struct {
	id        uint32
	t         *transport
	in        *inQueue
	reset     chan struct{}
	resetOnce sync.Once
}

func newChanState(id uint32, t *transport) *chanState {
	return &chanState{id: id, t: t, in: newInQueue(), reset: make(chan struct{})}
}

func (s *chanState) markReset() {
	s.resetOnce.Do(func() { close(s.reset) })
}

// Conn is the client side of a framed connection.
type Conn[Req, Res any] struct {
	t     *transport
	codec codec.Codec

	mu      sync.Mutex
	nextID  uint32
	streams map[uint32]*chanState

	done      chan struct{}
	closeOnce sync.Once
}

var _ stitch.Connection[int, string] = (*Conn[int, string])(nil)

// Dial wraps an established net.Conn as a stitch connection for one
// service, encoding messages with c. It takes ownership of the conn and
// starts the connection's read loop.
func Dial[Req, Res any](conn net.Conn, c codec.Codec) *Conn[Req, Res] {
	cn := &Conn[Req, Res]{
		t:       newTransport(conn),
		codec:   c,
		streams: make(map[uint32]*chanState),
		done:    make(chan struct{}),
	}
	go cn.readLoop()
	return cn
}

// Open implements stitch.Connection. The new channel exists only locally
// until its first message is sent; the peer learns of it from the first
// data frame.
func (c *Conn[Req, Res]) Open(ctx context.Context) (stitch.Sender[Req], stitch.Receiver[Res], error) {
	select {
	case <-c.done:
		return nil, nil, connClosedErr()
	default:
	}
	c.mu.Lock()
	c.nextID++
	st := newChanState(c.nextID, c.t)
	c.streams[st.id] = st
	c.mu.Unlock()

	sender := &frameSender[Req]{st: st, codec: c.codec}
	receiver := &frameReceiver[Res]{
		ctx:   ctx,
		st:    st,
		codec: c.codec,
		release: func() {
			c.forget(st.id)
			st.markReset()
			// Best-effort notification off the caller's goroutine: a peer
			// that has stopped draining the conn must not block release,
			// which is the framework's only cancellation mechanism.
			go func() {
				_ = c.t.writeFrame(frame{id: st.id, flag: flagReset})
			}()
		},
	}
	return sender, receiver, nil
}

// Close implements stitch.Connection: it closes the underlying net.Conn,
// which fails every channel still open on it.
func (c *Conn[Req, Res]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.t.close()
	})
	return err
}

func (c *Conn[Req, Res]) forget(id uint32) {
	c.mu.Lock()
	delete(c.streams, id)
	c.mu.Unlock()
}

func (c *Conn[Req, Res]) readLoop() {
	br := bufio.NewReader(c.t.conn)
	for {
		f, err := readFrame(br)
		if err != nil {
			c.failAll(stitch.NewError(stitch.CodeTransport, err))
			return
		}
		c.mu.Lock()
		st := c.streams[f.id]
		c.mu.Unlock()
		if st == nil {
			continue // channel already released
		}
		switch f.flag {
		case flagData:
			st.in.push(f.payload)
		case flagCloseSend:
			st.in.closeEOF()
		case flagReset:
			st.markReset()
			st.in.closeErr(connClosedErr())
			c.forget(f.id)
		}
	}
}

func (c *Conn[Req, Res]) failAll(err error) {
	c.closeOnce.Do(func() { _ = c.t.close() })
	c.mu.Lock()
	streams := c.streams
	c.streams = make(map[uint32]*chanState)
	close(c.done)
	c.mu.Unlock()
	for _, st := range streams {
		st.markReset()
		st.in.closeErr(err)
	}
}

// Endpoint is the listening side: it accepts connections from a
// net.Listener and surfaces every inbound logical channel, across all
// connections, through Accept.
type Endpoint[Req, Res any] struct {
	ln      net.Listener
	codec   codec.Codec
	inbound chan *chanState

	done      chan struct{}
	closeOnce sync.Once
}

var _ stitch.Endpoint[int, string] = (*Endpoint[int, string])(nil)

// Listen wraps a net.Listener as a stitch endpoint for one service,
// decoding messages with c. It takes ownership of the listener.
func Listen[Req, Res any](ln net.Listener, c codec.Codec) *Endpoint[Req, Res] {
	e := &Endpoint[Req, Res]{
		ln:      ln,
		codec:   c,
		inbound: make(chan *chanState, 16),
		done:    make(chan struct{}),
	}
	go e.acceptLoop()
	return e
}

// Serve frames a single established net.Conn as a stitch endpoint. Useful
// for connection-oriented setups like net.Pipe in tests.
func Serve[Req, Res any](conn net.Conn, c codec.Codec) *Endpoint[Req, Res] {
	e := &Endpoint[Req, Res]{
		codec:   c,
		inbound: make(chan *chanState, 16),
		done:    make(chan struct{}),
	}
	go e.serveConn(conn)
	return e
}

// Accept implements stitch.Endpoint: it blocks for the next inbound
// channel on any connection, decodes the channel's first message, and
// yields it with the reply and update halves. Channels that ended before
// yielding a first message are skipped rather than reported, so one
// aborted channel never looks like an endpoint failure.
func (e *Endpoint[Req, Res]) Accept(ctx context.Context) (Req, stitch.Sender[Res], stitch.Receiver[Req], error) {
	var zero Req
	for {
		var st *chanState
		select {
		case st = <-e.inbound:
		case <-e.done:
			return zero, nil, nil, connClosedErr()
		case <-ctx.Done():
			return zero, nil, nil, stitch.NewError(stitch.CodeTransport, ctx.Err())
		}
		payload, err := st.in.pop(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || stitch.CodeOf(err) == stitch.CodeConnectionClosed {
				continue // aborted before its first message
			}
			return zero, nil, nil, err
		}
		first := new(Req)
		if err := e.codec.Unmarshal(payload, first); err != nil {
			return zero, nil, nil, stitch.NewError(stitch.CodeSerialization, err)
		}
		sender := &frameSender[Res]{st: st, codec: e.codec}
		receiver := &frameReceiver[Req]{
			ctx:   ctx,
			st:    st,
			codec: e.codec,
			release: func() {
				st.markReset()
				go func() {
					_ = st.t.writeFrame(frame{id: st.id, flag: flagReset})
				}()
			},
		}
		return *first, sender, receiver, nil
	}
}

// Close implements stitch.Endpoint.
func (e *Endpoint[Req, Res]) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		if e.ln != nil {
			err = e.ln.Close()
		}
	})
	return err
}

func (e *Endpoint[Req, Res]) acceptLoop() {
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			e.Close()
			return
		}
		go e.serveConn(conn)
	}
}

func (e *Endpoint[Req, Res]) serveConn(conn net.Conn) {
	t := newTransport(conn)
	go func() {
		// Unblock the read loop when the endpoint shuts down.
		<-e.done
		_ = t.close()
	}()
	channels := make(map[uint32]*chanState)
	defer func() {
		_ = t.close()
		for _, st := range channels {
			st.markReset()
			st.in.closeErr(stitch.NewError(stitch.CodeTransport, errClosed))
		}
	}()
	br := bufio.NewReader(conn)
	for {
		f, err := readFrame(br)
		if err != nil {
			return
		}
		st, known := channels[f.id]
		if !known {
			if f.flag != flagData {
				continue // stale close or reset for a finished channel
			}
			st = newChanState(f.id, t)
			channels[f.id] = st
			st.in.push(f.payload)
			select {
			case e.inbound <- st:
			case <-e.done:
				return
			}
			continue
		}
		switch f.flag {
		case flagData:
			st.in.push(f.payload)
		case flagCloseSend:
			st.in.closeEOF()
		case flagReset:
			st.markReset()
			st.in.closeErr(connClosedErr())
			delete(channels, f.id)
		}
	}
}

// frameSender encodes and writes one channel's outbound messages.
type frameSender[T any] struct {
	st     *chanState
	codec  codec.Codec
	closed bool
}

func (s *frameSender[T]) Send(msg T) error {
	if s.closed {
		return connClosedErr()
	}
	select {
	case <-s.st.reset:
		return connClosedErr()
	default:
	}
	data, err := s.codec.Marshal(msg)
	if err != nil {
		return stitch.NewError(stitch.CodeSerialization, err)
	}
	if err := s.st.t.writeFrame(frame{id: s.st.id, flag: flagData, payload: data}); err != nil {
		return stitch.NewError(stitch.CodeTransport, err)
	}
	return nil
}

func (s *frameSender[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.st.t.writeFrame(frame{id: s.st.id, flag: flagCloseSend}); err != nil {
		return stitch.NewError(stitch.CodeTransport, err)
	}
	return nil
}

// frameReceiver decodes one channel's inbound payloads.
type frameReceiver[T any] struct {
	ctx       context.Context
	st        *chanState
	codec     codec.Codec
	release   func()
	closeOnce sync.Once
}

func (r *frameReceiver[T]) Receive() (T, error) {
	var zero T
	payload, err := r.st.in.pop(r.ctx)
	if err != nil {
		return zero, err
	}
	msg := new(T)
	if err := r.codec.Unmarshal(payload, msg); err != nil {
		return zero, stitch.NewError(stitch.CodeSerialization, err)
	}
	return *msg, nil
}

func (r *frameReceiver[T]) Close() error {
	r.closeOnce.Do(r.release)
	return nil
}
