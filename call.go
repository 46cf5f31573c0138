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
	"errors"
	"io"
)

// Call issues a unary call: it opens a channel, sends the request,
// half-closes the send direction, and waits for exactly one response
// before releasing the channel. It fails with CodeConnectionClosed if the
// peer ends the stream before any response arrives, and with CodeMapping
// if the response union carries a variant that doesn't answer this
// request.
func (s UnarySpec[SReq, SRes, Req, Res]) Call(
	ctx context.Context,
	client *Client[SReq, SRes],
	req Req,
) (Res, error) {
	var zero Res
	sender, receiver, err := client.conn.Open(ctx)
	if err != nil {
		return zero, asTypedError(err, CodeTransport)
	}
	defer receiver.Close()
	if err := sender.Send(s.WrapRequest(req)); err != nil {
		return zero, asTypedError(err, CodeTransport)
	}
	if err := sender.Close(); err != nil {
		return zero, asTypedError(err, CodeTransport)
	}
	wire, err := receiver.Receive()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return zero, errorf(CodeConnectionClosed, "channel closed before a response arrived")
		}
		return zero, asTypedError(err, CodeTransport)
	}
	res, ok := s.UnwrapResponse(wire)
	if !ok {
		return zero, errorf(CodeMapping, "%s response carried unexpected %T variant", s.Pattern(), wire)
	}
	return res, nil
}

// Call issues a server-streaming call: it opens a channel, sends the
// request once, and returns the inbound sequence of responses. The
// sequence is unbounded until the handler returns or a terminal error
// arrives; consumers that stop early must Close the stream, which releases
// the channel and fails the producer's next send.
func (s ServerStreamSpec[SReq, SRes, Req, Res]) Call(
	ctx context.Context,
	client *Client[SReq, SRes],
	req Req,
) (*ServerStreamForClient[SRes, Res], error) {
	sender, receiver, err := client.conn.Open(ctx)
	if err != nil {
		return nil, asTypedError(err, CodeTransport)
	}
	if err := sender.Send(s.WrapRequest(req)); err != nil {
		_ = receiver.Close()
		return nil, asTypedError(err, CodeTransport)
	}
	if err := sender.Close(); err != nil {
		_ = receiver.Close()
		return nil, asTypedError(err, CodeTransport)
	}
	return &ServerStreamForClient[SRes, Res]{receiver: receiver, unwrap: s.UnwrapResponse}, nil
}

// Call issues a client-streaming call: it opens a channel and sends the
// opening request, then hands back the stream for updates. The caller
// finishes with CloseAndReceive.
func (s ClientStreamSpec[SReq, SRes, Req, Update, Res]) Call(
	ctx context.Context,
	client *Client[SReq, SRes],
	req Req,
) (*ClientStreamForClient[SReq, SRes, Update, Res], error) {
	sender, receiver, err := client.conn.Open(ctx)
	if err != nil {
		return nil, asTypedError(err, CodeTransport)
	}
	if err := sender.Send(s.WrapRequest(req)); err != nil {
		_ = receiver.Close()
		return nil, asTypedError(err, CodeTransport)
	}
	return &ClientStreamForClient[SReq, SRes, Update, Res]{
		sender:   sender,
		receiver: receiver,
		wrap:     s.WrapUpdate,
		unwrap:   s.UnwrapResponse,
	}, nil
}

// Call issues a bidirectional-streaming call: it opens a channel and sends
// the opening request, then hands back the stream for interleaved updates
// and responses.
func (s BidiStreamSpec[SReq, SRes, Req, Update, Res]) Call(
	ctx context.Context,
	client *Client[SReq, SRes],
	req Req,
) (*BidiStreamForClient[SReq, SRes, Update, Res], error) {
	sender, receiver, err := client.conn.Open(ctx)
	if err != nil {
		return nil, asTypedError(err, CodeTransport)
	}
	if err := sender.Send(s.WrapRequest(req)); err != nil {
		_ = receiver.Close()
		return nil, asTypedError(err, CodeTransport)
	}
	return &BidiStreamForClient[SReq, SRes, Update, Res]{
		sender:   sender,
		receiver: receiver,
		wrap:     s.WrapUpdate,
		unwrap:   s.UnwrapResponse,
	}, nil
}
