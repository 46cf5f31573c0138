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

// Package calc is a self-contained calculator service. It imports nothing
// from the services that embed it, so it could live in its own module
// unchanged; parents adopt it by nesting its Request and Response unions
// into their own and delegating through a mapped channel.
package calc

import (
	"context"
	"fmt"

	"stitchrpc.dev/stitch"
)

// AddRequest asks for the sum of two integers.
type AddRequest struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

// AddResponse carries the sum.
type AddResponse struct {
	Sum int64 `json:"sum"`
}

// Request is the service's aggregate request union: exactly one variant
// is set.
type Request struct {
	Add *AddRequest `json:"add,omitempty"`
}

// Response is the service's aggregate response union.
type Response struct {
	Add *AddResponse `json:"add,omitempty"`
}

// AddSpec binds AddRequest to the unary pattern and AddResponse.
var AddSpec = stitch.UnarySpec[Request, Response, AddRequest, AddResponse]{
	WrapRequest:  func(req AddRequest) Request { return Request{Add: &req} },
	WrapResponse: func(res AddResponse) Response { return Response{Add: &res} },
	UnwrapResponse: func(res Response) (AddResponse, bool) {
		if res.Add == nil {
			return AddResponse{}, false
		}
		return *res.Add, true
	},
}

// Handler implements the calculator.
type Handler struct{}

// Handle routes one accepted calc request to its spec's dispatch.
func (h Handler) Handle(ctx context.Context, req Request, ch *stitch.Channel[Request, Response]) error {
	switch {
	case req.Add != nil:
		return AddSpec.Dispatch(ctx, ch, *req.Add, h.onAdd)
	}
	return fmt.Errorf("calc request with no variant set")
}

func (h Handler) onAdd(_ context.Context, req AddRequest) (AddResponse, error) {
	return AddResponse{Sum: req.A + req.B}, nil
}

// Client is the typed client surface for the calculator.
type Client struct {
	rpc *stitch.Client[Request, Response]
}

// NewClient wraps a client already bound (or mapped) to the calc service.
func NewClient(rpc *stitch.Client[Request, Response]) Client {
	return Client{rpc: rpc}
}

// Add returns a+b, computed remotely.
func (c Client) Add(ctx context.Context, a, b int64) (int64, error) {
	res, err := AddSpec.Call(ctx, c.rpc, AddRequest{A: a, B: b})
	if err != nil {
		return 0, err
	}
	return res.Sum, nil
}
