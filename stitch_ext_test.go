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

package stitch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"stitchrpc.dev/stitch"
	"stitchrpc.dev/stitch/internal/assert"
	"stitchrpc.dev/stitch/mempipe"
)

// The arith service exercises all four interaction patterns. Its unions
// follow the same one-variant-set shape the example services use.

type doubleRequest struct {
	Value int64 `json:"value"`
	Fail  bool  `json:"fail,omitempty"`
	Panic bool  `json:"panic,omitempty"`
}

type doubleResponse struct {
	Value int64 `json:"value"`
}

type countRequest struct {
	N int `json:"n"`
}

type countResponse struct {
	Value int `json:"value"`
}

type sumRequest struct {
	Base int64 `json:"base"`
}

type sumItem struct {
	Value int64 `json:"value"`
}

type sumResponse struct {
	Total int64 `json:"total"`
}

type chatRequest struct{}

type chatMessage struct {
	Text string `json:"text"`
}

type arithRequest struct {
	Double  *doubleRequest `json:"double,omitempty"`
	Count   *countRequest  `json:"count,omitempty"`
	Sum     *sumRequest    `json:"sum,omitempty"`
	SumItem *sumItem       `json:"sumItem,omitempty"`
	Chat    *chatRequest   `json:"chat,omitempty"`
	ChatMsg *chatMessage   `json:"chatMsg,omitempty"`
}

type arithResponse struct {
	Double  *doubleResponse `json:"double,omitempty"`
	Count   *countResponse  `json:"count,omitempty"`
	Sum     *sumResponse    `json:"sum,omitempty"`
	ChatMsg *chatMessage    `json:"chatMsg,omitempty"`
}

var doubleSpec = stitch.UnarySpec[arithRequest, arithResponse, doubleRequest, doubleResponse]{
	WrapRequest:  func(req doubleRequest) arithRequest { return arithRequest{Double: &req} },
	WrapResponse: func(res doubleResponse) arithResponse { return arithResponse{Double: &res} },
	UnwrapResponse: func(res arithResponse) (doubleResponse, bool) {
		if res.Double == nil {
			return doubleResponse{}, false
		}
		return *res.Double, true
	},
}

var countSpec = stitch.ServerStreamSpec[arithRequest, arithResponse, countRequest, countResponse]{
	WrapRequest:  func(req countRequest) arithRequest { return arithRequest{Count: &req} },
	WrapResponse: func(res countResponse) arithResponse { return arithResponse{Count: &res} },
	UnwrapResponse: func(res arithResponse) (countResponse, bool) {
		if res.Count == nil {
			return countResponse{}, false
		}
		return *res.Count, true
	},
}

var sumSpec = stitch.ClientStreamSpec[arithRequest, arithResponse, sumRequest, sumItem, sumResponse]{
	WrapRequest: func(req sumRequest) arithRequest { return arithRequest{Sum: &req} },
	WrapUpdate:  func(update sumItem) arithRequest { return arithRequest{SumItem: &update} },
	UnwrapUpdate: func(req arithRequest) (sumItem, bool) {
		if req.SumItem == nil {
			return sumItem{}, false
		}
		return *req.SumItem, true
	},
	WrapResponse: func(res sumResponse) arithResponse { return arithResponse{Sum: &res} },
	UnwrapResponse: func(res arithResponse) (sumResponse, bool) {
		if res.Sum == nil {
			return sumResponse{}, false
		}
		return *res.Sum, true
	},
}

var chatSpec = stitch.BidiStreamSpec[arithRequest, arithResponse, chatRequest, chatMessage, chatMessage]{
	WrapRequest: func(req chatRequest) arithRequest { return arithRequest{Chat: &req} },
	WrapUpdate:  func(update chatMessage) arithRequest { return arithRequest{ChatMsg: &update} },
	UnwrapUpdate: func(req arithRequest) (chatMessage, bool) {
		if req.ChatMsg == nil {
			return chatMessage{}, false
		}
		return *req.ChatMsg, true
	},
	WrapResponse: func(res chatMessage) arithResponse { return arithResponse{ChatMsg: &res} },
	UnwrapResponse: func(res arithResponse) (chatMessage, bool) {
		if res.ChatMsg == nil {
			return chatMessage{}, false
		}
		return *res.ChatMsg, true
	},
}

func onDouble(_ context.Context, req doubleRequest) (doubleResponse, error) {
	if req.Fail {
		return doubleResponse{}, errors.New("refusing to double")
	}
	if req.Panic {
		panic("double trouble")
	}
	return doubleResponse{Value: req.Value * 2}, nil
}

func onCount(_ context.Context, req countRequest, stream *stitch.ServerStream[arithResponse, countResponse]) error {
	for i := 0; i < req.N; i++ {
		if err := stream.Send(countResponse{Value: i}); err != nil {
			return err
		}
	}
	return nil
}

func onSum(_ context.Context, req sumRequest, updates *stitch.UpdateStream[arithRequest, sumItem]) (sumResponse, error) {
	total := req.Base
	for updates.Receive() {
		total += updates.Msg().Value
	}
	if err := updates.Err(); err != nil {
		return sumResponse{}, err
	}
	return sumResponse{Total: total}, nil
}

func onChat(
	_ context.Context,
	_ chatRequest,
	updates *stitch.UpdateStream[arithRequest, chatMessage],
	stream *stitch.ServerStream[arithResponse, chatMessage],
) error {
	for updates.Receive() {
		if err := stream.Send(chatMessage{Text: strings.ToUpper(updates.Msg().Text)}); err != nil {
			return err
		}
	}
	return updates.Err()
}

func handleArith(ctx context.Context, req arithRequest, ch *stitch.Channel[arithRequest, arithResponse]) error {
	switch {
	case req.Double != nil:
		return doubleSpec.Dispatch(ctx, ch, *req.Double, onDouble)
	case req.Count != nil:
		return countSpec.Dispatch(ctx, ch, *req.Count, onCount)
	case req.Sum != nil:
		return sumSpec.Dispatch(ctx, ch, *req.Sum, onSum)
	case req.Chat != nil:
		return chatSpec.Dispatch(ctx, ch, *req.Chat, onChat)
	}
	return errors.New("arith request with no variant set")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// servePipe runs handle over an in-process pipe and returns a client for
// it, tearing the loop down with the test.
func servePipe(t *testing.T, handle stitch.HandlerFunc[arithRequest, arithResponse]) *stitch.Client[arithRequest, arithResponse] {
	t.Helper()
	conn, endpoint := mempipe.New[arithRequest, arithResponse](4)
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = stitch.Serve(context.Background(), endpoint, handle, stitch.WithLogger(discardLogger()))
	}()
	t.Cleanup(func() {
		_ = endpoint.Close()
		<-served
	})
	return stitch.NewClient[arithRequest, arithResponse](conn)
}

func TestUnaryRoundTrip(t *testing.T) {
	t.Parallel()
	client := servePipe(t, handleArith)
	res, err := doubleSpec.Call(context.Background(), client, doubleRequest{Value: 21})
	assert.Nil(t, err)
	assert.Equal(t, res.Value, int64(42))
}

func TestUnaryHandlerFailure(t *testing.T) {
	t.Parallel()
	client := servePipe(t, handleArith)
	// Handler errors never travel on the wire: the channel closes without
	// a response and the caller observes that.
	_, err := doubleSpec.Call(context.Background(), client, doubleRequest{Value: 1, Fail: true})
	assert.NotNil(t, err)
	assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)
}

func TestServeIsolatesPanics(t *testing.T) {
	t.Parallel()
	client := servePipe(t, handleArith)
	_, err := doubleSpec.Call(context.Background(), client, doubleRequest{Value: 1, Panic: true})
	assert.NotNil(t, err)
	assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)

	// The accept loop must survive the panicking request.
	res, err := doubleSpec.Call(context.Background(), client, doubleRequest{Value: 4})
	assert.Nil(t, err)
	assert.Equal(t, res.Value, int64(8))
}

func TestServerStreamDelivery(t *testing.T) {
	t.Parallel()
	client := servePipe(t, handleArith)
	stream, err := countSpec.Call(context.Background(), client, countRequest{N: 5})
	assert.Nil(t, err)
	defer stream.Close()

	var got []int
	for stream.Receive() {
		got = append(got, stream.Msg().Value)
	}
	assert.Nil(t, stream.Err())
	assert.Equal(t, got, []int{0, 1, 2, 3, 4})
}

func TestServerStreamClientRelease(t *testing.T) {
	t.Parallel()
	// An endless producer must terminate once the consumer releases the
	// stream: its next send fails instead of blocking forever.
	stopped := make(chan error, 1)
	client := servePipe(t, func(ctx context.Context, req arithRequest, ch *stitch.Channel[arithRequest, arithResponse]) error {
		return countSpec.Dispatch(ctx, ch, *req.Count, func(_ context.Context, _ countRequest, stream *stitch.ServerStream[arithResponse, countResponse]) error {
			for i := 0; ; i++ {
				if err := stream.Send(countResponse{Value: i}); err != nil {
					stopped <- err
					return err
				}
			}
		})
	})

	stream, err := countSpec.Call(context.Background(), client, countRequest{N: 0})
	assert.Nil(t, err)
	assert.True(t, stream.Receive())
	assert.True(t, stream.Receive())
	assert.Nil(t, stream.Close())

	select {
	case err := <-stopped:
		assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("producer kept running after the stream was released")
	}
}

func TestClientStreamCollapse(t *testing.T) {
	t.Parallel()
	client := servePipe(t, handleArith)
	stream, err := sumSpec.Call(context.Background(), client, sumRequest{Base: 10})
	assert.Nil(t, err)
	assert.Nil(t, stream.Send(sumItem{Value: 1}))
	assert.Nil(t, stream.Send(sumItem{Value: 2}))
	assert.Nil(t, stream.Send(sumItem{Value: 3}))
	res, err := stream.CloseAndReceive()
	assert.Nil(t, err)
	assert.Equal(t, res.Total, int64(16))
}

func TestBidiStreamInterleaving(t *testing.T) {
	t.Parallel()
	client := servePipe(t, handleArith)
	stream, err := chatSpec.Call(context.Background(), client, chatRequest{})
	assert.Nil(t, err)
	defer stream.Close()

	for _, text := range []string{"hello", "again"} {
		assert.Nil(t, stream.Send(chatMessage{Text: text}))
		echo, err := stream.Receive()
		assert.Nil(t, err)
		assert.Equal(t, echo.Text, strings.ToUpper(text))
	}

	assert.Nil(t, stream.CloseSend())
	_, err = stream.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannelConsumedOnce(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[arithRequest, arithResponse](4)
	defer endpoint.Close()
	server := stitch.NewServer(endpoint)
	client := stitch.NewClient[arithRequest, arithResponse](conn)

	callErr := make(chan error, 1)
	go func() {
		_, err := doubleSpec.Call(context.Background(), client, doubleRequest{Value: 3})
		callErr <- err
	}()

	req, ch, err := server.Accept(context.Background())
	assert.Nil(t, err)
	assert.NotNil(t, req.Double)
	assert.Nil(t, doubleSpec.Dispatch(context.Background(), ch, *req.Double, onDouble))
	assert.Nil(t, <-callErr)

	// A channel resolves exactly one request; a second dispatch must fail
	// without touching the wire.
	err = doubleSpec.Dispatch(context.Background(), ch, *req.Double, onDouble)
	assert.NotNil(t, err)
}

func TestDispatchLabelsFailures(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[arithRequest, arithResponse](4)
	defer endpoint.Close()
	server := stitch.NewServer(endpoint)
	client := stitch.NewClient[arithRequest, arithResponse](conn)

	go func() {
		_, _ = doubleSpec.Call(context.Background(), client, doubleRequest{Value: 1, Fail: true})
	}()

	req, ch, err := server.Accept(context.Background())
	assert.Nil(t, err)
	err = doubleSpec.Dispatch(context.Background(), ch, *req.Double, onDouble)
	assert.NotNil(t, err)
	assert.Equal(t, stitch.CodeOf(err), stitch.CodeHandler)
	// Failures name the interaction pattern so accept-loop logs identify
	// which kind of request went wrong.
	assert.True(t, strings.Contains(err.Error(), stitch.PatternUnary.String()))
}

func TestServeSurvivesAbortedChannel(t *testing.T) {
	t.Parallel()
	client := servePipe(t, handleArith)

	// A client opens a channel and walks away without ever sending a
	// request. That is the aborted channel's problem, not the loop's.
	_, receiver, err := client.Conn().Open(context.Background())
	assert.Nil(t, err)
	assert.Nil(t, receiver.Close())

	res, err := doubleSpec.Call(context.Background(), client, doubleRequest{Value: 21})
	assert.Nil(t, err)
	assert.Equal(t, res.Value, int64(42))
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	_, endpoint := mempipe.New[arithRequest, arithResponse](4)
	defer endpoint.Close()
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- stitch.Serve(ctx, endpoint, handleArith, stitch.WithLogger(discardLogger()))
	}()
	cancel()
	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop didn't stop on cancellation")
	}
}

func TestServeStopsWhenEndpointCloses(t *testing.T) {
	t.Parallel()
	_, endpoint := mempipe.New[arithRequest, arithResponse](4)
	served := make(chan error, 1)
	go func() {
		served <- stitch.Serve(context.Background(), endpoint, handleArith, stitch.WithLogger(discardLogger()))
	}()
	assert.Nil(t, endpoint.Close())
	select {
	case err := <-served:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop didn't stop when the endpoint closed")
	}
}
