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

package mempipe_test

import (
	"context"
	"io"
	"testing"
	"time"

	"stitchrpc.dev/stitch"
	"stitchrpc.dev/stitch/internal/assert"
	"stitchrpc.dev/stitch/mempipe"
)

type request struct {
	Text string
}

type response struct {
	Text string
}

func TestFirstMessageDelivery(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[request, response](4)
	defer endpoint.Close()

	sender, receiver, err := conn.Open(context.Background())
	assert.Nil(t, err)
	defer receiver.Close()
	assert.Nil(t, sender.Send(request{Text: "first"}))
	assert.Nil(t, sender.Send(request{Text: "second"}))

	first, replySender, updates, err := endpoint.Accept(context.Background())
	assert.Nil(t, err)
	defer updates.Close()
	assert.Equal(t, first.Text, "first")

	// Order within a channel holds after the first message too.
	second, err := updates.Receive()
	assert.Nil(t, err)
	assert.Equal(t, second.Text, "second")

	assert.Nil(t, replySender.Send(response{Text: "reply"}))
	got, err := receiver.Receive()
	assert.Nil(t, err)
	assert.Equal(t, got.Text, "reply")
}

func TestHalfCloseYieldsEOF(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[request, response](4)
	defer endpoint.Close()

	sender, receiver, err := conn.Open(context.Background())
	assert.Nil(t, err)
	defer receiver.Close()
	assert.Nil(t, sender.Send(request{Text: "only"}))
	assert.Nil(t, sender.Close())

	_, _, updates, err := endpoint.Accept(context.Background())
	assert.Nil(t, err)
	defer updates.Close()

	// The peer half-closed after one message: drained, then EOF.
	_, err = updates.Receive()
	assert.ErrorIs(t, err, io.EOF)

	// Sending after closing our own half fails locally.
	err = sender.Send(request{Text: "late"})
	assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)
}

func TestReceiverReleaseFailsPeerSend(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[request, response](4)
	defer endpoint.Close()

	sender, receiver, err := conn.Open(context.Background())
	assert.Nil(t, err)
	assert.Nil(t, sender.Send(request{Text: "open"}))

	_, replySender, updates, err := endpoint.Accept(context.Background())
	assert.Nil(t, err)
	defer updates.Close()

	// Releasing the client's receive side is the cancellation signal: the
	// server's next send must fail even though the queue has room.
	assert.Nil(t, receiver.Close())
	err = replySender.Send(response{Text: "into the void"})
	assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)
}

func TestChannelsAreIndependent(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[request, response](4)
	defer endpoint.Close()

	senderA, receiverA, err := conn.Open(context.Background())
	assert.Nil(t, err)
	defer receiverA.Close()
	senderB, receiverB, err := conn.Open(context.Background())
	assert.Nil(t, err)
	defer receiverB.Close()

	assert.Nil(t, senderA.Send(request{Text: "a"}))
	assert.Nil(t, senderB.Send(request{Text: "b"}))

	firstA, replyA, updatesA, err := endpoint.Accept(context.Background())
	assert.Nil(t, err)
	defer updatesA.Close()
	firstB, replyB, updatesB, err := endpoint.Accept(context.Background())
	assert.Nil(t, err)
	defer updatesB.Close()
	assert.Equal(t, firstA.Text, "a")
	assert.Equal(t, firstB.Text, "b")

	// Replying out of accept order works: channels don't share state.
	assert.Nil(t, replyB.Send(response{Text: "for b"}))
	assert.Nil(t, replyA.Send(response{Text: "for a"}))
	gotA, err := receiverA.Receive()
	assert.Nil(t, err)
	assert.Equal(t, gotA.Text, "for a")
	gotB, err := receiverB.Receive()
	assert.Nil(t, err)
	assert.Equal(t, gotB.Text, "for b")
}

func TestAcceptSkipsAbortedChannels(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[request, response](4)
	defer endpoint.Close()

	// Two channels die before their first message: one by releasing the
	// receive side, one by half-closing the send side.
	_, released, err := conn.Open(context.Background())
	assert.Nil(t, err)
	assert.Nil(t, released.Close())
	halfClosed, orphaned, err := conn.Open(context.Background())
	assert.Nil(t, err)
	defer orphaned.Close()
	assert.Nil(t, halfClosed.Close())

	// Accept must step over both and deliver the next real request.
	sender, receiver, err := conn.Open(context.Background())
	assert.Nil(t, err)
	defer receiver.Close()
	assert.Nil(t, sender.Send(request{Text: "real"}))

	first, _, updates, err := endpoint.Accept(context.Background())
	assert.Nil(t, err)
	defer updates.Close()
	assert.Equal(t, first.Text, "real")
}

func TestOpenAfterCloseFails(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[request, response](4)
	assert.Nil(t, endpoint.Close())

	// The accept queue has room, but the pipe is gone: Open must fail
	// every time, not only when the scheduler happens to notice.
	for i := 0; i < 10; i++ {
		_, _, err := conn.Open(context.Background())
		assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)
	}
}

func TestCloseFailsOpenChannels(t *testing.T) {
	t.Parallel()
	conn, endpoint := mempipe.New[request, response](4)

	sender, receiver, err := conn.Open(context.Background())
	assert.Nil(t, err)
	defer receiver.Close()
	assert.Nil(t, sender.Send(request{Text: "first"}))
	_, replySender, updates, err := endpoint.Accept(context.Background())
	assert.Nil(t, err)
	defer updates.Close()

	assert.Nil(t, endpoint.Close())

	err = replySender.Send(response{Text: "late"})
	assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)
	_, _, err = conn.Open(context.Background())
	assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)
	_, _, _, err = endpoint.Accept(context.Background())
	assert.Equal(t, stitch.CodeOf(err), stitch.CodeConnectionClosed)
}

func TestAcceptHonorsContext(t *testing.T) {
	t.Parallel()
	_, endpoint := mempipe.New[request, response](4)
	defer endpoint.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, _, err := endpoint.Accept(ctx)
	assert.NotNil(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
