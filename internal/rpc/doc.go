// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rpc implements the per-session control surface: a small
// correlation-ID JSON protocol served over WebSocket on a Unix socket.
//
// Each supervised session exposes one socket. Handlers are registered
// on the server's Registry; the Client is used by out-of-process
// callers (e.g. `leash kill`) to invoke them.
package rpc
