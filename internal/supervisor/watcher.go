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

// WatchExit forwards the process's one-shot exit notification to the
// coordinator as a termination trigger. The reaper closes Done exactly
// once, so at most one trigger is ever raised from this source.
func WatchExit(p *Process, c *Coordinator) {
	go func() {
		<-p.Done()
		c.Fire(triggerFromExit(p.ExitResult()))
	}()
}
