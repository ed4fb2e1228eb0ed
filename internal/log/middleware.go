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

package log

import (
	"context"
	"log/slog"
	"time"
)

// CommandRequest describes one zkctl command invocation for logging.
type CommandRequest struct {
	// Command is the command name (e.g., "get", "create").
	Command string

	// Path is the znode the command operates on, if any.
	Path string

	// ConnectString is the ensemble the command talks to.
	ConnectString string

	// Metadata contains additional request fields.
	Metadata map[string]interface{}
}

// CommandResult describes the outcome of a command.
type CommandResult struct {
	Success    bool
	Error      string
	DurationMs int64

	// SessionID is the session the command ran on, or 0 if none was opened.
	SessionID int64
}

// LogCommandStart logs a command as it starts.
func LogCommandStart(logger *slog.Logger, req *CommandRequest) {
	attrs := []any{
		"event", "command_start",
		OperationKey, req.Command,
	}
	if req.Path != "" {
		attrs = append(attrs, PathKey, req.Path)
	}
	if req.ConnectString != "" {
		attrs = append(attrs, ConnectStringKey, req.ConnectString)
	}
	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Debug("command started", attrs...)
}

// LogCommandResult logs a finished command. Failures are logged at error level.
func LogCommandResult(logger *slog.Logger, req *CommandRequest, res *CommandResult) {
	attrs := []any{
		"event", "command_result",
		OperationKey, req.Command,
		"success", res.Success,
		DurationKey, res.DurationMs,
	}
	if req.Path != "" {
		attrs = append(attrs, PathKey, req.Path)
	}
	if res.SessionID != 0 {
		attrs = append(attrs, SessionIDKey, res.SessionID)
	}
	if res.Error != "" {
		attrs = append(attrs, "error", res.Error)
	}

	level := slog.LevelDebug
	message := "command completed"
	if !res.Success {
		level = slog.LevelError
		message = "command failed"
	}

	logger.Log(context.Background(), level, message, attrs...)
}

// CommandMiddleware logs the start and outcome of commands it runs.
type CommandMiddleware struct {
	logger *slog.Logger
}

// NewCommandMiddleware creates a new command logging middleware.
func NewCommandMiddleware(logger *slog.Logger) *CommandMiddleware {
	return &CommandMiddleware{logger: logger}
}

// Run calls handler, logging the request before and the result after.
// handler returns the id of the session it used, if any.
func (m *CommandMiddleware) Run(req *CommandRequest, handler func() (int64, error)) error {
	start := time.Now()
	LogCommandStart(m.logger, req)

	sessionID, err := handler()

	res := &CommandResult{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		SessionID:  sessionID,
	}
	if err != nil {
		res.Error = err.Error()
	}
	LogCommandResult(m.logger, req, res)

	return err
}
