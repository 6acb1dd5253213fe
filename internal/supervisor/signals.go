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

package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// WatchSignals forwards termination signals delivered to the supervisor
// itself (Ctrl+C, a plain kill) to the coordinator, so the session is
// archived instead of the runtime default killing the host process
// mid-flight. Defaults to SIGINT and SIGTERM. The returned stop function
// unregisters the watcher; the cleanup path never needs it, tests do.
func WatchSignals(c *Coordinator, sigs ...os.Signal) func() {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)

	go func() {
		for sig := range sigCh {
			c.Fire(Trigger{Reason: ReasonHostSignal, Signal: sig.String()})
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}
