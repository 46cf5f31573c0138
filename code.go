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

import (
	"fmt"
	"strconv"
)

// A Code classifies an RPC failure.
type Code uint8

const (
	// CodeUnknown is the zero value: the failure doesn't fit any other
	// code, or the error didn't originate in this module.
	CodeUnknown Code = iota

	// CodeTransport indicates that a send or receive failed at the
	// underlying substrate.
	CodeTransport

	// CodeSerialization indicates that a message could not be encoded or
	// decoded by the transport's codec.
	CodeSerialization

	// CodeConnectionClosed indicates that the peer ended the channel
	// before the interaction pattern completed.
	CodeConnectionClosed

	// CodeMapping indicates that a mapped adapter received a value that
	// doesn't belong to its inner service. This is a composition
	// misconfiguration, not a transient condition.
	CodeMapping

	// CodeHandler indicates that application handler logic failed or
	// panicked.
	CodeHandler

	minCode = CodeUnknown
	maxCode = CodeHandler
)

func (c Code) String() string {
	switch c {
	case CodeUnknown:
		return "unknown"
	case CodeTransport:
		return "transport"
	case CodeSerialization:
		return "serialization"
	case CodeConnectionClosed:
		return "connection_closed"
	case CodeMapping:
		return "mapping"
	case CodeHandler:
		return "handler"
	}
	return "code_" + strconv.Itoa(int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(data []byte) error {
	name := string(data)
	for candidate := minCode; candidate <= maxCode; candidate++ {
		if candidate.String() == name {
			*c = candidate
			return nil
		}
	}
	return fmt.Errorf("invalid code %q", name)
}
