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

// Package stitch is a transport-agnostic RPC core. It binds each request
// type to a single interaction pattern and response type at compile time,
// runs those interactions over any transport that can open and accept
// logical bidirectional channels, and lets independently authored services
// compose into one routed endpoint without a runtime registry.
//
// The building blocks are small:
//
//   - [Sender] and [Receiver] are the two halves of one logical channel.
//   - [Connection] opens channels (client side); [Endpoint] accepts them
//     (server side).
//   - [UnarySpec], [ServerStreamSpec], [ClientStreamSpec], and
//     [BidiStreamSpec] are declared-once contracts that fix a request
//     type's pattern and response type. All typed calls and dispatches hang
//     off these values, so misusing a request against the wrong pattern is
//     a compile error.
//   - [Client] issues calls; [Channel] is one accepted request's reply
//     path on the server.
//   - [ServiceMapping] translates between a parent service's aggregate
//     request/response unions and one constituent child's. [MapClient] and
//     [MapChannel] use it to nest services recursively, and [Box] erases a
//     concrete transport behind one static connection type.
//
// Transports live in their own packages: [stitchrpc.dev/stitch/mempipe]
// moves values between goroutines in process, and
// [stitchrpc.dev/stitch/nettransport] frames codec-encoded messages over
// any net.Conn. The example directory shows two services (a calculator and
// a ticking clock) composed behind a single application endpoint.
package stitch
