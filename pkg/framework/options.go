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

package framework

import (
	"log/slog"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

const (
	// DefaultSessionTimeout is used when no session timeout option is given.
	DefaultSessionTimeout = 60 * time.Second
	// DefaultConnectionTimeout is used when no connection timeout option is given.
	DefaultConnectionTimeout = 15 * time.Second
)

// Option configures NewClient.
type Option func(*options)

type options struct {
	sessionTimeout    time.Duration
	connectionTimeout time.Duration
	namespace         string
	factory           ZookeeperFactory
	ensembleProvider  EnsembleProvider
	canBeReadOnly     bool
	defaultACL        []zk.ACL
	defaultWatcher    zookeeper.Watcher
	logger            *slog.Logger
}

func defaultOptions() *options {
	return &options{
		sessionTimeout:    DefaultSessionTimeout,
		connectionTimeout: DefaultConnectionTimeout,
		defaultACL:        zk.WorldACL(zk.PermAll),
	}
}

// WithSessionTimeout sets the session timeout.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *options) { o.sessionTimeout = d }
}

// WithConnectionTimeout sets the connection timeout.
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *options) { o.connectionTimeout = d }
}

// WithNamespace prefixes every path with /namespace.
func WithNamespace(namespace string) Option {
	return func(o *options) { o.namespace = namespace }
}

// WithZookeeperFactory replaces the session factory.
func WithZookeeperFactory(factory ZookeeperFactory) Option {
	return func(o *options) { o.factory = factory }
}

// WithEnsembleProvider replaces the fixed connect string.
func WithEnsembleProvider(provider EnsembleProvider) Option {
	return func(o *options) { o.ensembleProvider = provider }
}

// WithCanBeReadOnly allows read-only sessions where the factory supports them.
func WithCanBeReadOnly(canBeReadOnly bool) Option {
	return func(o *options) { o.canBeReadOnly = canBeReadOnly }
}

// WithDefaultACL sets the ACL for created nodes.
func WithDefaultACL(acl []zk.ACL) Option {
	return func(o *options) { o.defaultACL = acl }
}

// WithDefaultWatcher sets the session client's default watcher.
func WithDefaultWatcher(w zookeeper.Watcher) Option {
	return func(o *options) { o.defaultWatcher = w }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}
