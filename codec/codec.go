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

// Package codec defines the wire encodings available to stitch
// transports. The core framework never inspects encoded bytes; it only
// requires that a codec round-trip the service's aggregate request and
// response values, and that the transport preserve per-channel message
// order and boundaries.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

const (
	nameJSON     = "json"
	nameGob      = "gob"
	nameProtobuf = "protobuf"
)

// A Codec marshals messages to and from bytes.
type Codec interface {
	Name() string
	Marshal(any) ([]byte, error)
	Unmarshal([]byte, any) error
}

// JSON returns a codec using encoding/json. It handles arbitrary Go
// values, including the one-variant-set union structs stitch services
// exchange.
func JSON() Codec { return &codecJSON{} }

// Gob returns a codec using encoding/gob. Each message is encoded as an
// independent gob stream, so no type registration or session state is
// shared between messages.
func Gob() Codec { return &codecGob{} }

// Protobuf returns a codec for messages implementing proto.Message,
// using the binary protobuf encoding.
func Protobuf() Codec { return &codecProtobuf{} }

type codecJSON struct{}

var _ Codec = (*codecJSON)(nil)

func (c *codecJSON) Name() string { return nameJSON }

func (c *codecJSON) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (c *codecJSON) Unmarshal(data []byte, message any) error {
	return json.Unmarshal(data, message)
}

type codecGob struct{}

var _ Codec = (*codecGob)(nil)

func (c *codecGob) Name() string { return nameGob }

func (c *codecGob) Marshal(message any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *codecGob) Unmarshal(data []byte, message any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(message)
}

type codecProtobuf struct{}

var _ Codec = (*codecProtobuf)(nil)

func (c *codecProtobuf) Name() string { return nameProtobuf }

func (c *codecProtobuf) Marshal(message any) ([]byte, error) {
	protoMessage, ok := message.(proto.Message)
	if !ok {
		return nil, errNotProtobuf(message)
	}
	return proto.Marshal(protoMessage)
}

func (c *codecProtobuf) Unmarshal(data []byte, message any) error {
	protoMessage, ok := message.(proto.Message)
	if !ok {
		return errNotProtobuf(message)
	}
	return proto.Unmarshal(data, protoMessage)
}

func errNotProtobuf(m any) error {
	return fmt.Errorf("%T doesn't implement proto.Message", m)
}
