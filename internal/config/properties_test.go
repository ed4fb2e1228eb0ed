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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
)

func newTestProperties(t *testing.T, yamlBody string, env map[string]string) *Properties {
	t.Helper()
	path := ""
	if yamlBody != "" {
		path = filepath.Join(t.TempDir(), "properties.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))
	}
	p := NewProperties(path)
	p.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(t, p.Reload())
	return p
}

func TestProperties_Precedence(t *testing.T) {
	p := newTestProperties(t,
		"curator-default-session-timeout: 10000\ncurator-default-connection-timeout: 5000\n",
		map[string]string{"CURATOR_DEFAULT_SESSION_TIMEOUT": "20000"})

	assert.Equal(t, 20000, p.Integer("curator-default-session-timeout", 60000))
	assert.Equal(t, 5000, p.Integer("curator-default-connection-timeout", 15000))

	p.Set("curator-default-session-timeout", "30000")
	assert.Equal(t, 30000, p.Integer("curator-default-session-timeout", 60000))

	p.Clear("curator-default-session-timeout")
	assert.Equal(t, 20000, p.Integer("curator-default-session-timeout", 60000))
}

func TestProperties_IntegerDefaults(t *testing.T) {
	p := newTestProperties(t, "", nil)
	assert.Equal(t, 60000, p.Integer("missing", 60000))

	p.Set("bad", "sixty")
	assert.Equal(t, 15000, p.Integer("bad", 15000))

	p.Set("padded", " 42 ")
	assert.Equal(t, 42, p.Integer("padded", 0))
}

func TestProperties_ReloadKeepsOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	p := NewProperties(path)
	p.lookupEnv = func(string) (string, bool) { return "", false }
	require.NoError(t, p.Reload())
	p.Set("b", "2")

	require.NoError(t, os.WriteFile(path, []byte("a: 3\n"), 0o600))
	require.NoError(t, p.Reload())

	v, _ := p.Get("a")
	assert.Equal(t, "3", v)
	v, _ = p.Get("b")
	assert.Equal(t, "2", v)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *zkerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	path := filepath.Join(t.TempDir(), "nested.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a:\n  b: 1\n"), 0o600))
	_, err = LoadFile(path)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "a", cfgErr.Key)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "CURATOR_DEFAULT_SESSION_TIMEOUT", EnvKey("curator-default-session-timeout"))
	assert.Equal(t, "A_B_C", EnvKey("a.b-c"))
}

func TestParseAssignment(t *testing.T) {
	k, v, err := ParseAssignment("curator-default-session-timeout=30000")
	require.NoError(t, err)
	assert.Equal(t, "curator-default-session-timeout", k)
	assert.Equal(t, "30000", v)

	k, v, err = ParseAssignment("empty=")
	require.NoError(t, err)
	assert.Equal(t, "empty", k)
	assert.Equal(t, "", v)

	_, _, err = ParseAssignment("novalue")
	assert.Error(t, err)
}

func TestPropertiesPath(t *testing.T) {
	t.Setenv(EnvPropertiesFile, "/tmp/explicit.yaml")
	assert.Equal(t, "/tmp/explicit.yaml", PropertiesPath())

	t.Setenv(EnvPropertiesFile, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.Equal(t, "", PropertiesPath())
}
