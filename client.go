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

// A Client issues typed calls for one service over a connection. It is
// stateless beyond the connection, safe for concurrent use, and cheap to
// copy: copies share the underlying connection rather than duplicating it.
//
// Clients don't expose call methods themselves; calls are methods on the
// pattern spec declared for each request type (see UnarySpec.Call and
// friends), which is what pins every request to its declared pattern and
// response type.
type Client[SReq, SRes any] struct {
	conn Connection[SReq, SRes]
}

// NewClient wraps a connection whose wire types match the service's
// aggregate request and response unions. A client for a nested child
// service is derived with MapClient rather than constructed from a second
// connection.
func NewClient[SReq, SRes any](conn Connection[SReq, SRes]) *Client[SReq, SRes] {
	return &Client[SReq, SRes]{conn: conn}
}

// Conn returns the underlying connection.
func (c *Client[SReq, SRes]) Conn() Connection[SReq, SRes] {
	return c.conn
}

// Boxed returns a client whose connection is erased behind the boxed
// adapter, so clients over heterogeneous transports share one static type.
func (c *Client[SReq, SRes]) Boxed() *Client[SReq, SRes] {
	return NewClient[SReq, SRes](Box(c.conn))
}

// MapClient derives a client for a constituent child service from a client
// for its parent, translating through the given mapping at the connection
// boundary. The result is an ordinary client, so mapping chains without
// limit: a client for a deeply nested child is built directly from the
// outermost composed service's client by repeated MapClient calls.
func MapClient[PReq, PRes, CReq, CRes any](
	parent *Client[PReq, PRes],
	mapping ServiceMapping[PReq, PRes, CReq, CRes],
) *Client[CReq, CRes] {
	return NewClient(MapConnection(parent.conn, mapping))
}
