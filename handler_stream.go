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

// ServerStream is the handler's view of a server-streaming or
// bidirectional-streaming reply path. Each response is widened into the
// service response union and sent before Send returns, so the peer's
// consumption rate throttles the handler. Once the peer releases the
// channel, Send fails with CodeConnectionClosed; handlers should return
// that error to terminate.
type ServerStream[SRes, Res any] struct {
	sender Sender[SRes]
	wrap   func(Res) SRes
}

// Send delivers one response to the client.
func (s *ServerStream[SRes, Res]) Send(msg Res) error {
	return asTypedError(s.sender.Send(s.wrap(msg)), CodeTransport)
}

// UpdateStream is the handler's view of the inbound updates of a
// client-streaming or bidirectional-streaming request. Each received
// service request is narrowed to the message's update type; a variant
// belonging to another message stops the stream with a CodeMapping error.
type UpdateStream[SReq, Update any] struct {
	receiver Receiver[SReq]
	unwrap   func(SReq) (Update, bool)
	msg      Update
	err      error
}

// Receive advances the stream to the next update, which is then
// available through the Msg method. It returns false when the client
// half-closes the update direction or an error occurs; Err reports the
// latter.
func (u *UpdateStream[SReq, Update]) Receive() bool {
	if u.err != nil {
		return false
	}
	wire, err := u.receiver.Receive()
	if err != nil {
		u.err = err
		return false
	}
	msg, ok := u.unwrap(wire)
	if !ok {
		u.err = errorf(CodeMapping, "update stream carried unexpected %T variant", wire)
		return false
	}
	u.msg = msg
	return true
}

// Msg returns the most recent update produced by a call to Receive.
func (u *UpdateStream[SReq, Update]) Msg() Update {
	return u.msg
}

// Err returns the first non-EOF error encountered by Receive.
func (u *UpdateStream[SReq, Update]) Err() error {
	if u.err == nil || errors.Is(u.err, io.EOF) {
		return nil
	}
	return u.err
}
