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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("expected valid JSON output: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogCommandStart(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	LogCommandStart(logger, &CommandRequest{
		Command:       "get",
		Path:          "/app/config",
		ConnectString: "zk1:2181,zk2:2181",
		Metadata:      map[string]interface{}{"watch": true},
	})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["event"] != "command_start" {
		t.Errorf("expected event 'command_start', got: %v", entry["event"])
	}
	if entry[OperationKey] != "get" {
		t.Errorf("expected operation 'get', got: %v", entry[OperationKey])
	}
	if entry[PathKey] != "/app/config" {
		t.Errorf("expected path '/app/config', got: %v", entry[PathKey])
	}
	if entry[ConnectStringKey] != "zk1:2181,zk2:2181" {
		t.Errorf("expected connect_string, got: %v", entry[ConnectStringKey])
	}
	if entry["watch"] != true {
		t.Errorf("expected metadata field 'watch', got: %v", entry["watch"])
	}
}

func TestLogCommandResult_Failure(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	req := &CommandRequest{Command: "rm", Path: "/a"}
	LogCommandResult(logger, req, &CommandResult{Success: true, DurationMs: 3})
	if buf.Len() != 0 {
		t.Errorf("expected successful command to be logged at debug, got: %s", buf.String())
	}

	LogCommandResult(logger, req, &CommandResult{Error: "zk: node does not exist", DurationMs: 5, SessionID: 42})
	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["level"] != "ERROR" {
		t.Errorf("expected level ERROR, got: %v", entry["level"])
	}
	if entry["msg"] != "command failed" {
		t.Errorf("expected msg 'command failed', got: %v", entry["msg"])
	}
	if entry[SessionIDKey] != float64(42) {
		t.Errorf("expected session_id 42, got: %v", entry[SessionIDKey])
	}
	if entry[DurationKey] != float64(5) {
		t.Errorf("expected duration_ms 5, got: %v", entry[DurationKey])
	}
}

func TestCommandMiddleware_Run(t *testing.T) {
	var buf bytes.Buffer
	m := NewCommandMiddleware(New(&Config{Level: "debug", Format: FormatJSON, Output: &buf}))

	err := m.Run(&CommandRequest{Command: "ls", Path: "/"}, func() (int64, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1]["success"] != true {
		t.Errorf("expected success, got: %v", entries[1]["success"])
	}
	if entries[1][SessionIDKey] != float64(7) {
		t.Errorf("expected session_id 7, got: %v", entries[1][SessionIDKey])
	}
}

func TestCommandMiddleware_RunError(t *testing.T) {
	var buf bytes.Buffer
	m := NewCommandMiddleware(New(&Config{Level: "debug", Format: FormatJSON, Output: &buf}))

	want := errors.New("connection refused")
	err := m.Run(&CommandRequest{Command: "stat", Path: "/x"}, func() (int64, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected handler error to be returned, got: %v", err)
	}

	entries := decodeLines(t, &buf)
	last := entries[len(entries)-1]
	if last["error"] != "connection refused" {
		t.Errorf("expected error field, got: %v", last["error"])
	}
	if _, ok := last[SessionIDKey]; ok {
		t.Errorf("expected no session_id when no session was opened")
	}
}
