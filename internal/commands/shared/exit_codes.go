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

package shared

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for leash commands. The run command always exits 0 once a
// session has been established; these apply to command setup failures
// and to the auxiliary commands.
const (
	ExitFailure      = 1
	ExitInvalidUsage = 2
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUsageError creates an error for invalid command usage.
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidUsage,
		Message: msg,
		Cause:   cause,
	}
}

// remediableError is implemented by errors that carry actionable guidance.
type remediableError interface {
	Remediation() string
}

// HandleExitError checks if an error is an ExitError and exits with the
// appropriate code.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	printRemediation(err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}

	os.Exit(ExitFailure)
}

// printRemediation walks the error chain and prints guidance if any
// error in the chain carries it.
func printRemediation(err error) {
	for err != nil {
		if rem, ok := err.(remediableError); ok {
			if guidance := rem.Remediation(); guidance != "" {
				fmt.Fprintf(os.Stderr, "\n%s\n", guidance)
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
