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

package nettransport

import (
	"context"
	"io"
	"sync"

	"stitchrpc.dev/stitch"
)

// inQueue buffers one channel's inbound payloads between the connection's
// read loop and the channel's receiver. It is unbounded so that a slow
// receiver on one channel never stalls the read loop and with it every
// other channel on the connection.
type inQueue struct {
	mu     sync.Mutex
	items  [][]byte
	eof    bool
	fail   error
	notify chan struct{}
}

func newInQueue() *inQueue {
	return &inQueue{notify: make(chan struct{}, 1)}
}

func (q *inQueue) push(payload []byte) {
	q.mu.Lock()
	if q.eof || q.fail != nil {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, payload)
	q.mu.Unlock()
	q.wake()
}

// closeEOF marks the peer's half-close. Buffered payloads drain first.
func (q *inQueue) closeEOF() {
	q.mu.Lock()
	q.eof = true
	q.mu.Unlock()
	q.wake()
}

// closeErr terminates the queue with err after buffered payloads drain.
func (q *inQueue) closeErr(err error) {
	q.mu.Lock()
	if q.fail == nil {
		q.fail = err
	}
	q.mu.Unlock()
	q.wake()
}

func (q *inQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *inQueue) pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		if q.fail != nil {
			err := q.fail
			q.mu.Unlock()
			return nil, err
		}
		if q.eof {
			q.mu.Unlock()
			return nil, io.EOF
		}
		q.mu.Unlock()
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, stitch.NewError(stitch.CodeTransport, ctx.Err())
		}
	}
}
