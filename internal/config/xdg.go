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

package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the XDG config directory for zktrace
// On Unix and macOS: ~/.config/zktrace
// Respects XDG_CONFIG_HOME environment variable
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "zktrace"), nil
}

// PropertiesPath returns the properties file to load. ZKTRACE_PROPERTIES
// wins; otherwise properties.yaml in ConfigDir is used when it exists.
// An empty path means there is no file to load.
func PropertiesPath() string {
	if path := os.Getenv(EnvPropertiesFile); path != "" {
		return path
	}
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "properties.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
