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

// Package multi composes the calc and clock services into one routed
// service. Composition is purely structural: each child's entire request
// and response union nests as one variant of this service's unions, and
// the handler delegates through a mapped channel. There is no name or id
// registry anywhere; an inbound request identifies its child by which
// variant is set.
package multi

import (
	"context"
	"fmt"

	"stitchrpc.dev/stitch"
	"stitchrpc.dev/stitch/example/calc"
	"stitchrpc.dev/stitch/example/clock"
)

// Request is the aggregate request union over both children.
type Request struct {
	Calc  *calc.Request  `json:"calc,omitempty"`
	Clock *clock.Request `json:"clock,omitempty"`
}

// Response is the aggregate response union over both children.
type Response struct {
	Calc  *calc.Response  `json:"calc,omitempty"`
	Clock *clock.Response `json:"clock,omitempty"`
}

// CalcMapping nests the calc service inside this one.
var CalcMapping = stitch.ServiceMapping[Request, Response, calc.Request, calc.Response]{
	WrapRequest: func(req calc.Request) Request { return Request{Calc: &req} },
	UnwrapRequest: func(req Request) (calc.Request, bool) {
		if req.Calc == nil {
			return calc.Request{}, false
		}
		return *req.Calc, true
	},
	WrapResponse: func(res calc.Response) Response { return Response{Calc: &res} },
	UnwrapResponse: func(res Response) (calc.Response, bool) {
		if res.Calc == nil {
			return calc.Response{}, false
		}
		return *res.Calc, true
	},
}

// ClockMapping nests the clock service inside this one.
var ClockMapping = stitch.ServiceMapping[Request, Response, clock.Request, clock.Response]{
	WrapRequest: func(req clock.Request) Request { return Request{Clock: &req} },
	UnwrapRequest: func(req Request) (clock.Request, bool) {
		if req.Clock == nil {
			return clock.Request{}, false
		}
		return *req.Clock, true
	},
	WrapResponse: func(res clock.Response) Response { return Response{Clock: &res} },
	UnwrapResponse: func(res Response) (clock.Response, bool) {
		if res.Clock == nil {
			return clock.Response{}, false
		}
		return *res.Clock, true
	},
}

// Handler routes requests to the matching child handler.
type Handler struct {
	Calc  calc.Handler
	Clock *clock.Handler
}

// Handle classifies the accepted request and delegates to the child
// whose union it wraps, narrowing the channel on the way down.
func (h Handler) Handle(ctx context.Context, req Request, ch *stitch.Channel[Request, Response]) error {
	switch {
	case req.Calc != nil:
		return h.Calc.Handle(ctx, *req.Calc, stitch.MapChannel(ch, CalcMapping))
	case req.Clock != nil:
		return h.Clock.Handle(ctx, *req.Clock, stitch.MapChannel(ch, ClockMapping))
	}
	return fmt.Errorf("multi request with no variant set")
}

// Client exposes each child's typed client over one shared connection.
type Client struct {
	Calc  calc.Client
	Clock clock.Client
}

// NewClient derives both child clients from a client bound (or mapped)
// to this service.
func NewClient(rpc *stitch.Client[Request, Response]) Client {
	return Client{
		Calc:  calc.NewClient(stitch.MapClient(rpc, CalcMapping)),
		Clock: clock.NewClient(stitch.MapClient(rpc, ClockMapping)),
	}
}
