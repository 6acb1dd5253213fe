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

// Package run implements `leash run`: spawn the tool under supervision,
// tethered to a session record that is archived when the run ends.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/leashd/leash/internal/commands/shared"
	"github.com/leashd/leash/internal/config"
	"github.com/leashd/leash/internal/daemon"
	"github.com/leashd/leash/internal/log"
	"github.com/leashd/leash/internal/session"
	"github.com/leashd/leash/internal/supervisor"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var (
		modeFlag    string
		binFlag     string
		dataDirFlag string
	)

	cmd := &cobra.Command{
		Use:   "run [flags] [-- tool-args...]",
		Short: "Run a supervised tool session",
		Long: `Launch the configured tool as a supervised child process. The run is
recorded as a session and archived when the tool exits, when a remote
kill request arrives, or when a local failure ends the run.

Arguments after -- are passed to the tool verbatim, following any
flags implied by the permission mode.`,
		Example: `  leash run
  leash run --mode read-only
  leash run --mode yolo -- resume --model o3
  leash run --bin /opt/codex/bin/codex`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, args, modeFlag, binFlag, dataDirFlag)
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Permission mode: default, read-only, safe-yolo, yolo")
	cmd.Flags().StringVar(&binFlag, "bin", "", "Tool binary to launch (overrides config)")
	cmd.Flags().StringVar(&dataDirFlag, "data-dir", "", "Session data directory (overrides config)")

	return cmd
}

func runSession(cmd *cobra.Command, args []string, modeFlag, binFlag, dataDirFlag string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	if binFlag != "" {
		cfg.Tool.Binary = binFlag
	}

	logger := newLogger(cfg)

	modeStr := modeFlag
	if modeStr == "" {
		modeStr = cfg.Tool.DefaultMode
	}
	mode, err := supervisor.ParseMode(modeStr)
	if err != nil {
		return shared.NewUsageError("invalid --mode", err)
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return err
	}

	store, err := session.Open(dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	machineID, err := session.MachineID(dataDir)
	if err != nil {
		return err
	}

	sessionID := session.NewSessionID()
	meta := gatherMetadata(cfg, mode)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	handle, err := store.CreateOrGetSession(ctx, machineID, sessionID, meta)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logger = log.WithSession(logger, sessionID)
	logger.Info("session created", "machine_id", machineID, "mode", string(mode))

	notifyDaemon(ctx, logger, cfg, machineID, sessionID, meta)

	// From here on every path ends through the coordinator, which owns
	// session archival and process exit.
	coord := supervisor.NewCoordinator(logger, handle,
		supervisor.WithEndNotifier(func(notifyCtx context.Context) {
			notifyDaemonEnded(notifyCtx, logger, cfg, machineID, sessionID, meta)
		}),
	)
	supervisor.WatchSignals(coord)

	if err := coord.BindKillHandler(); err != nil {
		logger.Error("failed to bind kill handler", log.Error(err))
		coord.Fire(supervisor.Trigger{Reason: supervisor.ReasonLocalError, Err: err})
		coord.Run()
		return nil
	}

	launcher := supervisor.NewLauncher(supervisor.LaunchOptions{
		Binary:    cfg.Tool.Binary,
		Mode:      mode,
		ExtraArgs: passthroughArgs(cmd, args),
		ToolHome:  cfg.Tool.Home,
	}, logger)

	proc, err := launcher.Launch()
	if err != nil {
		var spawnErr *supervisor.SpawnError
		if errors.As(err, &spawnErr) {
			fmt.Fprintln(os.Stderr, "Error:", spawnErr.Error())
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, spawnErr.Remediation())
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err.Error())
		}
		coord.Fire(supervisor.Trigger{Reason: supervisor.ReasonProcessError, Err: err})
		coord.Run()
		return nil
	}

	if err := handle.UpdateMetadata(ctx, func(m *session.Metadata) {
		m.PID = proc.PID()
	}); err != nil {
		logger.Warn("failed to record child pid", log.Error(err))
	}

	coord.SetProcess(proc)
	supervisor.WatchExit(proc, coord)
	coord.Run()
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logCfg := log.FromEnv()
	if os.Getenv("LEASH_LOG_LEVEL") == "" && os.Getenv("LEASH_DEBUG") == "" {
		logCfg.Level = cfg.Log.Level
	}
	if os.Getenv("LOG_FORMAT") == "" {
		logCfg.Format = log.Format(cfg.Log.Format)
	}
	if shared.GetVerbose() {
		logCfg.Level = "debug"
	}
	return log.WithComponent(log.New(logCfg), "run")
}

// gatherMetadata captures the identifying facts of this run.
func gatherMetadata(cfg *config.Config, mode supervisor.PermissionMode) session.Metadata {
	meta := session.Metadata{
		Binary:    cfg.Tool.Binary,
		Mode:      string(mode),
		StartedAt: time.Now().UTC(),
		State:     session.StateRunning,
	}

	if host, err := os.Hostname(); err == nil {
		meta.Host = host
	}
	if u, err := user.Current(); err == nil {
		meta.User = u.Username
	}
	if wd, err := os.Getwd(); err == nil {
		meta.WorkDir = wd
	}

	return meta
}

// notifyDaemon tells leashd about the new session. Best-effort: an
// absent daemon is the normal standalone case.
func notifyDaemon(ctx context.Context, logger *slog.Logger, cfg *config.Config, machineID, sessionID string, meta session.Metadata) {
	client, err := daemonClient(cfg)
	if err != nil {
		logger.Warn("skipping daemon notification", log.Error(err))
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err = client.NotifySessionStarted(notifyCtx, daemon.SessionNotice{
		MachineID: machineID,
		SessionID: sessionID,
		Metadata:  meta,
	})
	if err != nil {
		if daemon.IsNotRunning(err) {
			logger.Debug("no daemon listening, running standalone")
		} else {
			logger.Warn("daemon notification failed", log.Error(err))
		}
	}
}

// notifyDaemonEnded tells leashd the session was archived. Runs inside
// the cleanup sequence, so it is best-effort like every other step there.
func notifyDaemonEnded(ctx context.Context, logger *slog.Logger, cfg *config.Config, machineID, sessionID string, meta session.Metadata) {
	client, err := daemonClient(cfg)
	if err != nil {
		logger.Warn("skipping daemon end notification", log.Error(err))
		return
	}

	meta.State = session.StateArchived
	err = client.NotifySessionEnded(ctx, daemon.SessionNotice{
		MachineID: machineID,
		SessionID: sessionID,
		Metadata:  meta,
	})
	if err != nil {
		if daemon.IsNotRunning(err) {
			logger.Debug("no daemon listening, skipping end notification")
		} else {
			logger.Warn("daemon end notification failed", log.Error(err))
		}
	}
}

func daemonClient(cfg *config.Config) (*daemon.Client, error) {
	transport, err := daemon.ParseHost(cfg.Daemon.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon host: %w", err)
	}
	return daemon.New(daemon.WithTransport(transport))
}

// passthroughArgs returns the arguments destined for the tool. Everything
// after -- is passthrough; leash itself takes no positional arguments.
func passthroughArgs(cmd *cobra.Command, args []string) []string {
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		return args[at:]
	}
	return args
}
