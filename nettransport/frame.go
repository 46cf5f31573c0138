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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// Wire format: every frame is a 9-byte header followed by the payload.
//
//	+----------------+------+----------------+=================+
//	| channel id (4) | flag | payload len (4)| payload         |
//	+----------------+------+----------------+=================+
//
// The first data frame on an unseen channel id opens the channel on the
// receiving side. closeSend half-closes one direction; reset releases the
// whole channel. Frames for distinct channels interleave freely on the
// connection, which is what keeps one slow channel from addressing the
// others. Per-channel order is the only ordering the transport promises.
const (
	flagData      uint8 = 1
	flagCloseSend uint8 = 2
	flagReset     uint8 = 3

	headerSize    = 9
	maxFrameBytes = 16 << 20
)

type frame struct {
	id      uint32
	flag    uint8
	payload []byte
}

// transport serializes frame writes onto one net.Conn. Multiple logical
// channels share the writer, so the mutex is what keeps one channel's
// header from interleaving with another's payload.
type transport struct {
	conn    net.Conn
	writeMu sync.Mutex
	bw      *bufio.Writer
}

func newTransport(conn net.Conn) *transport {
	return &transport{conn: conn, bw: bufio.NewWriter(conn)}
}

func (t *transport) writeFrame(f frame) error {
	if len(f.payload) > maxFrameBytes {
		return fmt.Errorf("frame payload %d bytes exceeds limit %d", len(f.payload), maxFrameBytes)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], f.id)
	header[4] = f.flag
	binary.BigEndian.PutUint32(header[5:9], uint32(len(f.payload)))
	if _, err := t.bw.Write(header[:]); err != nil {
		return err
	}
	if len(f.payload) > 0 {
		if _, err := t.bw.Write(f.payload); err != nil {
			return err
		}
	}
	return t.bw.Flush()
}

func (t *transport) close() error {
	return t.conn.Close()
}

func readFrame(r io.Reader) (frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return frame{}, err
	}
	f := frame{
		id:   binary.BigEndian.Uint32(header[0:4]),
		flag: header[4],
	}
	size := binary.BigEndian.Uint32(header[5:9])
	if size > maxFrameBytes {
		return frame{}, fmt.Errorf("frame payload %d bytes exceeds limit %d", size, maxFrameBytes)
	}
	if size > 0 {
		f.payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.payload); err != nil {
			return frame{}, err
		}
	}
	return f, nil
}
