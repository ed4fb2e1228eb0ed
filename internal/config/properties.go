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

// Package config holds process-wide properties.
//
// A property is looked up, in order of precedence, in values set with Set
// (the CLI's -D flag), in the environment, and in a flat YAML properties
// file. Environment variable names are derived from the property key:
// "curator-default-session-timeout" is read from
// CURATOR_DEFAULT_SESSION_TIMEOUT.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
)

// EnvPropertiesFile names the properties file to load.
const EnvPropertiesFile = "ZKTRACE_PROPERTIES"

// Properties is a thread-safe property set.
type Properties struct {
	mu        sync.RWMutex
	path      string
	file      map[string]string
	overrides map[string]string
	lookupEnv func(string) (string, bool)
}

var (
	// globalProps is the singleton instance of process properties
	globalProps *Properties
	once        sync.Once
)

// Global returns the process properties, loading the properties file on
// first use. A file that cannot be read is logged and ignored.
func Global() *Properties {
	once.Do(func() {
		globalProps = NewProperties(PropertiesPath())
		if err := globalProps.Reload(); err != nil {
			slog.Warn("ignoring properties file", "error", err)
		}
	})
	return globalProps
}

// NewProperties returns an empty property set backed by the YAML file at
// path. The file is not read until Reload.
func NewProperties(path string) *Properties {
	return &Properties{
		path:      path,
		file:      map[string]string{},
		overrides: map[string]string{},
		lookupEnv: os.LookupEnv,
	}
}

// Reload re-reads the properties file. Overrides are kept.
func (p *Properties) Reload() error {
	file, err := LoadFile(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.file = file
	p.mu.Unlock()
	return nil
}

// Get returns the value of key.
func (p *Properties) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if v, ok := p.overrides[key]; ok {
		return v, true
	}
	if v, ok := p.lookupEnv(EnvKey(key)); ok {
		return v, true
	}
	v, ok := p.file[key]
	return v, ok
}

// Set overrides key with value.
func (p *Properties) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[key] = value
}

// Clear removes the override for key.
func (p *Properties) Clear(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.overrides, key)
}

// Integer returns key parsed as a base-10 integer. A missing or malformed
// value yields def.
func (p *Properties) Integer(key string, def int) int {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Debug("ignoring malformed integer property", "key", key, "value", v)
		return def
	}
	return n
}

// Get returns key from the global properties.
func Get(key string) (string, bool) { return Global().Get(key) }

// Set overrides key in the global properties.
func Set(key, value string) { Global().Set(key, value) }

// Clear removes an override from the global properties.
func Clear(key string) { Global().Clear(key) }

// Integer reads an integer from the global properties.
func Integer(key string, def int) int { return Global().Integer(key, def) }

// Reload re-reads the global properties file.
func Reload() error { return Global().Reload() }

// EnvKey returns the environment variable consulted for key.
func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// LoadFile reads a flat YAML map of properties. An empty path yields an
// empty map.
func LoadFile(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &zkerrors.ConfigError{Reason: "cannot read properties file " + path, Cause: err}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &zkerrors.ConfigError{Reason: "invalid properties file " + path, Cause: err}
	}
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, &zkerrors.ConfigError{Key: k, Reason: "properties must be scalar values"}
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// ParseAssignment splits a "key=value" property assignment.
func ParseAssignment(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", &zkerrors.ValidationError{
			Field:      "property",
			Message:    fmt.Sprintf("invalid assignment %q", s),
			Suggestion: "use key=value",
		}
	}
	return key, value, nil
}
