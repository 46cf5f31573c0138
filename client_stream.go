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
	"errors"
	"io"
)

// ServerStreamForClient is the client's view of a server-streaming call:
// the produced sequence of responses. Each received service response is
// narrowed to the message's response type before it is handed out.
type ServerStreamForClient[SRes, Res any] struct {
	receiver Receiver[SRes]
	unwrap   func(SRes) (Res, bool)
	msg      Res
	err      error
}

// Receive advances the stream to the next response, which is then
// available through the Msg method. It returns false when the stream
// stops, either because the producer finished or because of an error.
// After Receive returns false, Err reports any terminal error.
func (s *ServerStreamForClient[SRes, Res]) Receive() bool {
	if s.err != nil {
		return false
	}
	wire, err := s.receiver.Receive()
	if err != nil {
		s.err = err
		return false
	}
	msg, ok := s.unwrap(wire)
	if !ok {
		s.err = errorf(CodeMapping, "stream carried unexpected %T variant", wire)
		return false
	}
	s.msg = msg
	return true
}

// Msg returns the most recent response produced by a call to Receive.
func (s *ServerStreamForClient[SRes, Res]) Msg() Res {
	return s.msg
}

// Err returns the first non-EOF error encountered by Receive. A stream
// that the producer ended normally reports nil.
func (s *ServerStreamForClient[SRes, Res]) Err() error {
	if s.err == nil || errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

// Close releases the channel. Dropping the stream this way is the sole
// cancellation mechanism: the producer's next send fails, terminating its
// work. Consumers must call Close even after Receive returns false.
func (s *ServerStreamForClient[SRes, Res]) Close() error {
	return s.receiver.Close()
}

// ClientStreamForClient is the client's view of a client-streaming call.
type ClientStreamForClient[SReq, SRes, Update, Res any] struct {
	sender   Sender[SReq]
	receiver Receiver[SRes]
	wrap     func(Update) SReq
	unwrap   func(SRes) (Res, bool)
}

// Send delivers one update to the server, widened into the service
// request union.
func (c *ClientStreamForClient[SReq, SRes, Update, Res]) Send(update Update) error {
	return c.sender.Send(c.wrap(update))
}

// CloseAndReceive half-closes the update direction, waits for the single
// final response, and releases the channel.
func (c *ClientStreamForClient[SReq, SRes, Update, Res]) CloseAndReceive() (Res, error) {
	var zero Res
	defer c.receiver.Close()
	if err := c.sender.Close(); err != nil {
		return zero, asTypedError(err, CodeTransport)
	}
	wire, err := c.receiver.Receive()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return zero, errorf(CodeConnectionClosed, "channel closed before a response arrived")
		}
		return zero, asTypedError(err, CodeTransport)
	}
	res, ok := c.unwrap(wire)
	if !ok {
		return zero, errorf(CodeMapping, "final response carried unexpected %T variant", wire)
	}
	return res, nil
}

// BidiStreamForClient is the client's view of a bidirectional-streaming
// call.
type BidiStreamForClient[SReq, SRes, Update, Res any] struct {
	sender   Sender[SReq]
	receiver Receiver[SRes]
	wrap     func(Update) SReq
	unwrap   func(SRes) (Res, bool)
}

// Send delivers one update to the server.
func (b *BidiStreamForClient[SReq, SRes, Update, Res]) Send(update Update) error {
	return b.sender.Send(b.wrap(update))
}

// CloseSend half-closes the update direction; responses may keep
// arriving.
func (b *BidiStreamForClient[SReq, SRes, Update, Res]) CloseSend() error {
	return b.sender.Close()
}

// Receive waits for the next response. When the server is done sending,
// Receive returns an error wrapping io.EOF.
func (b *BidiStreamForClient[SReq, SRes, Update, Res]) Receive() (Res, error) {
	var zero Res
	wire, err := b.receiver.Receive()
	if err != nil {
		return zero, err
	}
	res, ok := b.unwrap(wire)
	if !ok {
		return zero, errorf(CodeMapping, "stream carried unexpected %T variant", wire)
	}
	return res, nil
}

// Close releases the channel.
func (b *BidiStreamForClient[SReq, SRes, Update, Res]) Close() error {
	return b.receiver.Close()
}
