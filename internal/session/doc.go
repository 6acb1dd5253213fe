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

// Package session defines the session registrar contract consumed by the
// supervisor, and provides a SQLite-backed implementation for local use.
//
// A session is one tracked interactive run: a record with mutable
// metadata and a monotonic running -> archived lifecycle. The supervisor
// only depends on the Registrar and Handle interfaces; the Store is the
// local realization and additionally serves the `leash sessions` and
// `leash kill` commands.
package session
