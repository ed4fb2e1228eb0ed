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

package zktrace

import (
	"sync"
	"time"

	"github.com/tombee/zktrace/internal/config"
)

// Process properties that override the factory's default timeouts, in
// milliseconds.
const (
	PropertyDefaultSessionTimeout    = "curator-default-session-timeout"
	PropertyDefaultConnectionTimeout = "curator-default-connection-timeout"
)

const (
	fallbackSessionTimeoutMs    = 60000
	fallbackConnectionTimeoutMs = 15000
)

var defaults struct {
	once              sync.Once
	mu                sync.RWMutex
	sessionTimeout    time.Duration
	connectionTimeout time.Duration
}

func loadDefaults() {
	session := time.Duration(config.Integer(PropertyDefaultSessionTimeout, fallbackSessionTimeoutMs)) * time.Millisecond
	connection := time.Duration(config.Integer(PropertyDefaultConnectionTimeout, fallbackConnectionTimeoutMs)) * time.Millisecond

	defaults.mu.Lock()
	defaults.sessionTimeout = session
	defaults.connectionTimeout = connection
	defaults.mu.Unlock()
}

// DefaultSessionTimeout is the session timeout NewClient uses. It is read
// from process properties on first use.
func DefaultSessionTimeout() time.Duration {
	defaults.once.Do(loadDefaults)
	defaults.mu.RLock()
	defer defaults.mu.RUnlock()
	return defaults.sessionTimeout
}

// DefaultConnectionTimeout is the connection timeout NewClient uses.
func DefaultConnectionTimeout() time.Duration {
	defaults.once.Do(loadDefaults)
	defaults.mu.RLock()
	defer defaults.mu.RUnlock()
	return defaults.connectionTimeout
}

// ReloadDefaults re-reads the default timeouts from process properties.
func ReloadDefaults() {
	defaults.once.Do(func() {})
	loadDefaults()
}
