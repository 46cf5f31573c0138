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
	"fmt"
)

// Dispatch resolves one accepted unary request: it invokes the handler,
// widens and sends the single response, then closes the channel. Handler
// errors and panics are wrapped with CodeHandler and returned for the
// accept loop to log; the channel closes without a response, so the
// caller observes CodeConnectionClosed. Failures never leave the request.
func (s UnarySpec[SReq, SRes, Req, Res]) Dispatch(
	ctx context.Context,
	ch *Channel[SReq, SRes],
	req Req,
	handler func(context.Context, Req) (Res, error),
) error {
	if err := ch.consume(); err != nil {
		return err
	}
	defer ch.receiver.Close()
	res, err := runHandler(func() (Res, error) { return handler(ctx, req) })
	if err != nil {
		_ = ch.sender.Close()
		return fmt.Errorf("%s request: %w", s.Pattern(), err)
	}
	if err := ch.sender.Send(s.WrapResponse(res)); err != nil {
		return asTypedError(err, CodeTransport)
	}
	return asTypedError(ch.sender.Close(), CodeTransport)
}

// Dispatch resolves one accepted server-streaming request: the handler
// pushes responses through the stream, each send completing before the
// next item is produced, so a slow peer throttles the producer. The
// stream ends when the handler returns; a peer that released the channel
// fails the handler's next send, which is the normal way such handlers
// terminate and isn't reported as a failure.
func (s ServerStreamSpec[SReq, SRes, Req, Res]) Dispatch(
	ctx context.Context,
	ch *Channel[SReq, SRes],
	req Req,
	handler func(context.Context, Req, *ServerStream[SRes, Res]) error,
) error {
	if err := ch.consume(); err != nil {
		return err
	}
	defer ch.receiver.Close()
	stream := &ServerStream[SRes, Res]{sender: ch.sender, wrap: s.WrapResponse}
	err := runStreamHandler(func() error { return handler(ctx, req, stream) })
	if err != nil {
		_ = ch.sender.Close()
		if CodeOf(err) == CodeConnectionClosed {
			return nil
		}
		return fmt.Errorf("%s request: %w", s.Pattern(), err)
	}
	return asTypedError(ch.sender.Close(), CodeTransport)
}

// Dispatch resolves one accepted client-streaming request: the handler
// consumes the update stream and returns the single final response, which
// is widened, sent, and followed by channel close.
func (s ClientStreamSpec[SReq, SRes, Req, Update, Res]) Dispatch(
	ctx context.Context,
	ch *Channel[SReq, SRes],
	req Req,
	handler func(context.Context, Req, *UpdateStream[SReq, Update]) (Res, error),
) error {
	if err := ch.consume(); err != nil {
		return err
	}
	defer ch.receiver.Close()
	updates := &UpdateStream[SReq, Update]{receiver: ch.receiver, unwrap: s.UnwrapUpdate}
	res, err := runHandler(func() (Res, error) { return handler(ctx, req, updates) })
	if err != nil {
		_ = ch.sender.Close()
		return fmt.Errorf("%s request: %w", s.Pattern(), err)
	}
	if err := ch.sender.Send(s.WrapResponse(res)); err != nil {
		return asTypedError(err, CodeTransport)
	}
	return asTypedError(ch.sender.Close(), CodeTransport)
}

// Dispatch resolves one accepted bidirectional-streaming request: the
// handler reads updates and pushes responses until either side is done.
func (s BidiStreamSpec[SReq, SRes, Req, Update, Res]) Dispatch(
	ctx context.Context,
	ch *Channel[SReq, SRes],
	req Req,
	handler func(context.Context, Req, *UpdateStream[SReq, Update], *ServerStream[SRes, Res]) error,
) error {
	if err := ch.consume(); err != nil {
		return err
	}
	defer ch.receiver.Close()
	updates := &UpdateStream[SReq, Update]{receiver: ch.receiver, unwrap: s.UnwrapUpdate}
	stream := &ServerStream[SRes, Res]{sender: ch.sender, wrap: s.WrapResponse}
	err := runStreamHandler(func() error { return handler(ctx, req, updates, stream) })
	if err != nil {
		_ = ch.sender.Close()
		if CodeOf(err) == CodeConnectionClosed {
			return nil
		}
		return fmt.Errorf("%s request: %w", s.Pattern(), err)
	}
	return asTypedError(ch.sender.Close(), CodeTransport)
}

// runHandler confines handler faults, including panics, to the request
// being processed.
func runHandler[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorf(CodeHandler, "handler panicked: %v", r)
		}
	}()
	out, err = fn()
	err = asTypedError(err, CodeHandler)
	return out, err
}

func runStreamHandler(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorf(CodeHandler, "handler panicked: %v", r)
		}
	}()
	return asTypedError(fn(), CodeHandler)
}
