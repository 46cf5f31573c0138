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

// The spec types below are the message-pattern contracts. Each one binds a
// concrete request type to the service it belongs to, the interaction
// pattern it follows, and its response type, via the conversion functions
// between the concrete types and the service's aggregate request/response
// unions. A spec is declared exactly once, as a package-level variable next
// to the message types it describes, and every typed client call and
// server dispatch is a method on the spec, so a request type can never be
// used against another pattern's machinery without a compile error.
//
// The SReq and SRes type parameters are the service's wire-level request
// and response unions; Req, Update, and Res are the concrete message
// types. Widening conversions (Wrap*) must be total; narrowing conversions
// (Unwrap*) report false for union variants that belong to other messages.

// UnarySpec declares a unary contract: one request yields exactly one
// response.
type UnarySpec[SReq, SRes, Req, Res any] struct {
	// WrapRequest widens the request into the service request union.
	WrapRequest func(Req) SReq
	// WrapResponse widens the response into the service response union.
	WrapResponse func(Res) SRes
	// UnwrapResponse narrows a service response to this message's
	// response type.
	UnwrapResponse func(SRes) (Res, bool)
}

// Pattern returns PatternUnary.
func (UnarySpec[SReq, SRes, Req, Res]) Pattern() Pattern { return PatternUnary }

// ServerStreamSpec declares a server-streaming contract: one request
// yields a lazily produced, unbounded sequence of responses, terminated by
// the handler returning or the client releasing the stream.
type ServerStreamSpec[SReq, SRes, Req, Res any] struct {
	WrapRequest    func(Req) SReq
	WrapResponse   func(Res) SRes
	UnwrapResponse func(SRes) (Res, bool)
}

// Pattern returns PatternServerStream.
func (ServerStreamSpec[SReq, SRes, Req, Res]) Pattern() Pattern { return PatternServerStream }

// ClientStreamSpec declares a client-streaming contract: a request opens
// the interaction, any number of client-sent updates follow, and the
// server collapses them into one final response.
type ClientStreamSpec[SReq, SRes, Req, Update, Res any] struct {
	WrapRequest    func(Req) SReq
	WrapUpdate     func(Update) SReq
	UnwrapUpdate   func(SReq) (Update, bool)
	WrapResponse   func(Res) SRes
	UnwrapResponse func(SRes) (Res, bool)
}

// Pattern returns PatternClientStream.
func (ClientStreamSpec[SReq, SRes, Req, Update, Res]) Pattern() Pattern { return PatternClientStream }

// BidiStreamSpec declares a bidirectional-streaming contract: after the
// opening request, client updates and server responses interleave freely.
type BidiStreamSpec[SReq, SRes, Req, Update, Res any] struct {
	WrapRequest    func(Req) SReq
	WrapUpdate     func(Update) SReq
	UnwrapUpdate   func(SReq) (Update, bool)
	WrapResponse   func(Res) SRes
	UnwrapResponse func(SRes) (Res, bool)
}

// Pattern returns PatternBidiStream.
func (BidiStreamSpec[SReq, SRes, Req, Update, Res]) Pattern() Pattern { return PatternBidiStream }
