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

import "context"

// Version is the semantic version of the stitch module.
const Version = "0.3.0"

// Pattern describes the interaction shape of a request type: which side
// streams, if any. A request type's pattern is fixed by the spec value it
// is declared with and never re-evaluated at runtime; it labels dispatch
// failures and mapping errors so logs identify the interaction at fault.
type Pattern uint8

const (
	PatternUnary        Pattern = 0b00
	PatternClientStream Pattern = 0b01
	PatternServerStream Pattern = 0b10
	PatternBidiStream           = PatternClientStream | PatternServerStream
)

func (p Pattern) String() string {
	switch p {
	case PatternUnary:
		return "unary"
	case PatternClientStream:
		return "client_stream"
	case PatternServerStream:
		return "server_stream"
	case PatternBidiStream:
		return "bidi_stream"
	}
	return "unknown"
}

// Sender is the writable half of one logical channel. Implementations do
// not need to be safe for concurrent use.
//
// Close half-closes the channel: it signals that no more messages follow
// in this direction, independent of the other direction. The peer's
// Receiver observes the half-close as an error wrapping io.EOF.
//
// Sender implementations provided by this module guarantee that all
// returned errors can be cast to *Error using errors.As.
type Sender[T any] interface {
	Send(msg T) error
	Close() error
}

// Receiver is the readable half of one logical channel. Implementations do
// not need to be safe for concurrent use.
//
// Receive returns an error wrapping io.EOF after the peer half-closes its
// send direction. Close releases the channel: the peer's next Send fails
// with CodeConnectionClosed. Releasing the channel is the framework's only
// cancellation mechanism; there is no cancel message on the wire.
type Receiver[T any] interface {
	Receive() (T, error)
	Close() error
}

// Connection is the client-side capability to open new logical channels to
// a peer. Channels opened from one connection are structurally
// independent: messages on one channel arrive in send order, but no
// ordering holds across channels.
//
// Connections are safe for concurrent use and cheap to share; closing a
// connection fails any channel still open on it.
type Connection[Req, Res any] interface {
	// Open creates a fresh logical channel to the peer. The returned
	// sender carries requests and updates; the receiver carries
	// responses. The supplied context bounds every subsequent operation
	// on the channel.
	Open(ctx context.Context) (Sender[Req], Receiver[Res], error)

	// Close releases the connection and every channel open on it.
	Close() error
}

// Endpoint is the server-side capability to accept inbound logical
// channels. Accept blocks until the next channel arrives and yields its
// first decoded message together with the paired reply sender and update
// receiver.
type Endpoint[Req, Res any] interface {
	Accept(ctx context.Context) (Req, Sender[Res], Receiver[Req], error)
	Close() error
}
