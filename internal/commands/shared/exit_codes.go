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
	"io"
	"os"

	"github.com/go-zookeeper/zk"

	pkgerrors "github.com/tombee/zktrace/pkg/errors"
)

// Exit codes for zkctl
const (
	ExitSuccess    = 0
	ExitFailed     = 1
	ExitUsage      = 2
	ExitNoNode     = 3
	ExitConnection = 4
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

// NewUsageError creates an error for invalid arguments or flags
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg, Cause: cause}
}

// NewConnectionError creates an error for an ensemble that could not be reached
func NewConnectionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConnection, Message: msg, Cause: cause}
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var validation *pkgerrors.ValidationError
	var timeout *pkgerrors.TimeoutError
	switch {
	case errors.Is(err, zk.ErrNoNode):
		return ExitNoNode
	case errors.As(err, &validation):
		return ExitUsage
	case errors.As(err, &timeout), errors.Is(err, zk.ErrNoServer), errors.Is(err, zk.ErrConnectionClosed):
		return ExitConnection
	default:
		return ExitFailed
	}
}

// PrintError writes err, and any suggestion it carries, to w.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())
	printUserVisibleSuggestion(w, err)
}

// HandleExitError prints err and exits with the matching code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// printUserVisibleSuggestion walks the chain for a UserVisibleError and
// prints its suggestion if available.
func printUserVisibleSuggestion(w io.Writer, err error) {
	var userErr pkgerrors.UserVisibleError
	if !errors.As(err, &userErr) || !userErr.IsUserVisible() {
		return
	}
	if suggestion := userErr.GetSuggestion(); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}
