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

// A ServiceMapping declares how one constituent child service nests inside
// a parent service's aggregate unions. It carries all four conversions, so
// a single declared-once value serves both directions: clients widen
// requests and narrow responses, server channels widen responses and
// narrow updates.
//
// Widening must be total: every child value has exactly one place in the
// parent union. Narrowing is partial and must return false for parent
// variants that belong to other children; the mapped adapters turn that
// into a CodeMapping error instead of guessing.
type ServiceMapping[PReq, PRes, CReq, CRes any] struct {
	WrapRequest    func(CReq) PReq
	UnwrapRequest  func(PReq) (CReq, bool)
	WrapResponse   func(CRes) PRes
	UnwrapResponse func(PRes) (CRes, bool)
}

// ComposeMapping chains a grandparent-to-parent mapping with a
// parent-to-child mapping into a single grandparent-to-child mapping.
// Equivalent to wrapping adapters twice, without the extra layer.
func ComposeMapping[GReq, GRes, PReq, PRes, CReq, CRes any](
	outer ServiceMapping[GReq, GRes, PReq, PRes],
	inner ServiceMapping[PReq, PRes, CReq, CRes],
) ServiceMapping[GReq, GRes, CReq, CRes] {
	return ServiceMapping[GReq, GRes, CReq, CRes]{
		WrapRequest: func(req CReq) GReq {
			return outer.WrapRequest(inner.WrapRequest(req))
		},
		UnwrapRequest: func(req GReq) (CReq, bool) {
			parent, ok := outer.UnwrapRequest(req)
			if !ok {
				var zero CReq
				return zero, false
			}
			return inner.UnwrapRequest(parent)
		},
		WrapResponse: func(res CRes) GRes {
			return outer.WrapResponse(inner.WrapResponse(res))
		},
		UnwrapResponse: func(res GRes) (CRes, bool) {
			parent, ok := outer.UnwrapResponse(res)
			if !ok {
				var zero CRes
				return zero, false
			}
			return inner.UnwrapResponse(parent)
		},
	}
}

// MapConnection exposes a connection bound to a parent service's wire
// types as a connection for one constituent child. Every outbound child
// request is widened before send; every inbound parent response is
// narrowed, failing with CodeMapping if the value belongs to another
// child. The adapter adds translation only: the wrapped channels share the
// parent channel's lifetime and resources.
func MapConnection[PReq, PRes, CReq, CRes any](
	conn Connection[PReq, PRes],
	mapping ServiceMapping[PReq, PRes, CReq, CRes],
) Connection[CReq, CRes] {
	return &mappedConnection[PReq, PRes, CReq, CRes]{conn: conn, mapping: mapping}
}

type mappedConnection[PReq, PRes, CReq, CRes any] struct {
	conn    Connection[PReq, PRes]
	mapping ServiceMapping[PReq, PRes, CReq, CRes]
}

func (m *mappedConnection[PReq, PRes, CReq, CRes]) Open(
	ctx context.Context,
) (Sender[CReq], Receiver[CRes], error) {
	sender, receiver, err := m.conn.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	wrapped := &mappedSender[CReq, PReq]{inner: sender, wrap: m.mapping.WrapRequest}
	narrowed := &mappedReceiver[CRes, PRes]{inner: receiver, unwrap: m.mapping.UnwrapResponse}
	return wrapped, narrowed, nil
}

func (m *mappedConnection[PReq, PRes, CReq, CRes]) Close() error {
	return m.conn.Close()
}

// mappedSender widens each outbound message into the outer type.
type mappedSender[In, Out any] struct {
	inner Sender[Out]
	wrap  func(In) Out
}

func (s *mappedSender[In, Out]) Send(msg In) error {
	return s.inner.Send(s.wrap(msg))
}

func (s *mappedSender[In, Out]) Close() error {
	return s.inner.Close()
}

// mappedReceiver narrows each inbound message to the inner type, failing
// with CodeMapping for values that belong to another service.
type mappedReceiver[In, Out any] struct {
	inner  Receiver[Out]
	unwrap func(Out) (In, bool)
}

func (r *mappedReceiver[In, Out]) Receive() (In, error) {
	var zero In
	outer, err := r.inner.Receive()
	if err != nil {
		return zero, err
	}
	inner, ok := r.unwrap(outer)
	if !ok {
		return zero, errorf(CodeMapping, "received %T value that doesn't belong to the mapped service", outer)
	}
	return inner, nil
}

func (r *mappedReceiver[In, Out]) Close() error {
	return r.inner.Close()
}
