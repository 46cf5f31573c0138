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

// A BoxedConnection erases the concrete connection type behind a single
// concrete wrapper parameterized only by the wire request and response
// types. Use it when connections over different transports (or through
// different mapping chains) must be stored behind one static type, say
// in a map keyed by peer. Boxing adds indirection only; the wrapped
// connection keeps its resources and lifetime.
type BoxedConnection[Req, Res any] struct {
	open  func(ctx context.Context) (Sender[Req], Receiver[Res], error)
	close func() error
}

var _ Connection[int, string] = (*BoxedConnection[int, string])(nil)

// Box erases conn's concrete type. Boxing an already boxed connection
// returns it unchanged.
func Box[Req, Res any](conn Connection[Req, Res]) *BoxedConnection[Req, Res] {
	if boxed, ok := conn.(*BoxedConnection[Req, Res]); ok {
		return boxed
	}
	return &BoxedConnection[Req, Res]{open: conn.Open, close: conn.Close}
}

// Open implements Connection.
func (b *BoxedConnection[Req, Res]) Open(ctx context.Context) (Sender[Req], Receiver[Res], error) {
	return b.open(ctx)
}

// Close implements Connection.
func (b *BoxedConnection[Req, Res]) Close() error {
	return b.close()
}
