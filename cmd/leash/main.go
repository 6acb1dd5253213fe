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

// Command leash supervises interactive coding tool sessions.
package main

import (
	"github.com/leashd/leash/internal/cli"
	"github.com/leashd/leash/internal/commands/kill"
	"github.com/leashd/leash/internal/commands/run"
	"github.com/leashd/leash/internal/commands/sessions"
	"github.com/leashd/leash/internal/commands/version"
)

// Version information set by build flags
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

func main() {
	cli.SetVersion(buildVersion, buildCommit, buildDate)

	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(
		run.NewRunCommand(),
		kill.NewKillCommand(),
		sessions.NewSessionsCommand(),
		version.NewVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
