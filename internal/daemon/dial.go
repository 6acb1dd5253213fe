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

package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HostEnv is the environment variable that overrides the daemon address.
const HostEnv = "LEASH_HOST"

// DefaultSocketPath returns the default Unix socket path for the daemon.
func DefaultSocketPath() (string, error) {
	// Use XDG_RUNTIME_DIR if available (Linux)
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "leash", "leashd.sock"), nil
	}

	// Fall back to ~/.leash/leashd.sock
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".leash", "leashd.sock"), nil
}

// ParseHost parses a LEASH_HOST value into a transport.
// Supports:
//   - unix:///path/to/socket
//   - tcp://host:port
//
// If host is empty, returns a transport for the default socket path.
func ParseHost(host string) (*Transport, error) {
	if host == "" {
		return DefaultTransport()
	}

	switch {
	case strings.HasPrefix(host, "unix://"):
		return NewUnixTransport(strings.TrimPrefix(host, "unix://")), nil

	case strings.HasPrefix(host, "tcp://"):
		return NewTCPTransport(strings.TrimPrefix(host, "tcp://")), nil

	default:
		return nil, fmt.Errorf("invalid LEASH_HOST format: %s (must start with unix:// or tcp://)", host)
	}
}

// NotRunningError indicates the daemon is not running.
type NotRunningError struct {
	SocketPath string
	Err        error
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("leashd daemon is not running (socket: %s)", e.SocketPath)
}

func (e *NotRunningError) Unwrap() error {
	return e.Err
}

// IsNotRunning checks if an error indicates the daemon is not running.
// Session supervision treats an absent daemon as normal, not as a failure.
func IsNotRunning(err error) bool {
	if err == nil {
		return false
	}

	var nre *NotRunningError
	if errors.As(err, &nre) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such file or directory")
}
