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

// Package app is the outermost composed service: everything multi offers
// (calc + clock) plus one app-specific endpoint. It demonstrates that
// composition recurses: an Add request accepted here travels
// app → multi → calc through two mapped channels.
package app

import (
	"context"
	"fmt"

	"stitchrpc.dev/stitch"
	"stitchrpc.dev/stitch/example/multi"
)

// VersionRequest asks for the application version.
type VersionRequest struct{}

// VersionResponse carries the configured version string.
type VersionResponse struct {
	Version string `json:"version"`
}

// Request is the app's aggregate request union.
type Request struct {
	Multi   *multi.Request  `json:"multi,omitempty"`
	Version *VersionRequest `json:"version,omitempty"`
}

// Response is the app's aggregate response union.
type Response struct {
	Multi   *multi.Response  `json:"multi,omitempty"`
	Version *VersionResponse `json:"version,omitempty"`
}

// VersionSpec binds VersionRequest to the unary pattern and
// VersionResponse.
var VersionSpec = stitch.UnarySpec[Request, Response, VersionRequest, VersionResponse]{
	WrapRequest:  func(req VersionRequest) Request { return Request{Version: &req} },
	WrapResponse: func(res VersionResponse) Response { return Response{Version: &res} },
	UnwrapResponse: func(res Response) (VersionResponse, bool) {
		if res.Version == nil {
			return VersionResponse{}, false
		}
		return *res.Version, true
	},
}

// MultiMapping nests the multi service inside the app.
var MultiMapping = stitch.ServiceMapping[Request, Response, multi.Request, multi.Response]{
	WrapRequest: func(req multi.Request) Request { return Request{Multi: &req} },
	UnwrapRequest: func(req Request) (multi.Request, bool) {
		if req.Multi == nil {
			return multi.Request{}, false
		}
		return *req.Multi, true
	},
	WrapResponse: func(res multi.Response) Response { return Response{Multi: &res} },
	UnwrapResponse: func(res Response) (multi.Response, bool) {
		if res.Multi == nil {
			return multi.Response{}, false
		}
		return *res.Multi, true
	},
}

// Handler serves the app: the nested multi handler plus app state.
type Handler struct {
	Multi   multi.Handler
	Version string
}

// Handle resolves app-level requests directly and delegates wrapped
// child requests through a mapped channel.
func (h Handler) Handle(ctx context.Context, req Request, ch *stitch.Channel[Request, Response]) error {
	switch {
	case req.Multi != nil:
		return h.Multi.Handle(ctx, *req.Multi, stitch.MapChannel(ch, MultiMapping))
	case req.Version != nil:
		return VersionSpec.Dispatch(ctx, ch, *req.Version, h.onVersion)
	}
	return fmt.Errorf("app request with no variant set")
}

func (h Handler) onVersion(_ context.Context, _ VersionRequest) (VersionResponse, error) {
	return VersionResponse{Version: h.Version}, nil
}

// Client is the app's client surface: the nested multi client plus the
// app-level calls, all sharing one connection.
type Client struct {
	Multi multi.Client

	rpc *stitch.Client[Request, Response]
}

// NewClient builds the client tree over one connection.
func NewClient(conn stitch.Connection[Request, Response]) Client {
	rpc := stitch.NewClient(conn)
	return Client{
		Multi: multi.NewClient(stitch.MapClient(rpc, MultiMapping)),
		rpc:   rpc,
	}
}

// Version returns the server's configured version string.
func (c Client) Version(ctx context.Context) (string, error) {
	res, err := VersionSpec.Call(ctx, c.rpc, VersionRequest{})
	if err != nil {
		return "", err
	}
	return res.Version, nil
}

// Serve runs the app's accept loop until ctx ends or the endpoint
// closes.
func Serve(ctx context.Context, endpoint stitch.Endpoint[Request, Response], h Handler, opts ...stitch.ServeOption) error {
	return stitch.Serve(ctx, endpoint, h.Handle, opts...)
}
