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

// Package supervisor launches an interactive tool as a child process,
// binds its lifetime to a tracked session, and guarantees deterministic
// cleanup of both under every exit path.
//
// Four trigger sources feed one coordinator: the exit watcher (child
// terminated), the remote kill handler (a remote actor asked for
// termination), host signals (the supervisor itself received SIGINT or
// SIGTERM), and local failures. Whichever fires first wins the race;
// the cleanup sequence runs exactly once and is identical regardless of
// the trigger. The sequence escalates SIGTERM -> grace window -> SIGKILL,
// archives the session record, announces its death, flushes and closes
// the handle, and exits the host process with code 0. Every step that
// talks to the session backend degrades to log-and-continue so the host
// process always terminates.
package supervisor
