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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zookeeper/zk"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// ErrNotStarted is returned by ZooKeeper before Start or after Close.
var ErrNotStarted = errors.New("client is not started")

// SessionClient is the session-level client exposed by Framework.ZookeeperClient.
type SessionClient interface {
	Start() error
	Close() error
	Started() bool
	ZooKeeper() (zookeeper.Conn, error)
	IsConnected() bool
	BlockUntilConnected(ctx context.Context) error
	ConnectionTimeout() time.Duration
	RetryPolicy() RetryPolicy
	CurrentConnectionString() string
}

// ZookeeperClient manages one ZooKeeper session on behalf of a Client,
// re-creating it through its ZookeeperFactory when the session expires.
type ZookeeperClient struct {
	state             *connectionState
	retryPolicy       atomic.Pointer[RetryPolicy]
	connectionTimeout time.Duration
	started           atomic.Bool
	logger            *slog.Logger
}

var _ SessionClient = (*ZookeeperClient)(nil)

// NewZookeeperClient returns a client for connectString using the default
// session factory.
func NewZookeeperClient(connectString string, sessionTimeout, connectionTimeout time.Duration, watcher zookeeper.Watcher, retryPolicy RetryPolicy) (*ZookeeperClient, error) {
	if connectString == "" {
		return nil, &zkerrors.ValidationError{
			Field:      "connectString",
			Message:    "must not be empty",
			Suggestion: "pass host:port pairs separated by commas",
		}
	}
	return NewZookeeperClientWithFactory(DefaultZookeeperFactory{}, NewFixedEnsembleProvider(connectString),
		sessionTimeout, connectionTimeout, watcher, retryPolicy, false)
}

// NewZookeeperClientWithFactory is the all-arguments constructor.
func NewZookeeperClientWithFactory(factory ZookeeperFactory, ensembleProvider EnsembleProvider, sessionTimeout, connectionTimeout time.Duration, watcher zookeeper.Watcher, retryPolicy RetryPolicy, canBeReadOnly bool) (*ZookeeperClient, error) {
	switch {
	case factory == nil:
		return nil, &zkerrors.ValidationError{Field: "zookeeperFactory", Message: "must not be nil"}
	case ensembleProvider == nil:
		return nil, &zkerrors.ValidationError{Field: "ensembleProvider", Message: "must not be nil"}
	case retryPolicy == nil:
		return nil, &zkerrors.ValidationError{Field: "retryPolicy", Message: "must not be nil"}
	case sessionTimeout <= 0:
		return nil, &zkerrors.ValidationError{Field: "sessionTimeout", Message: fmt.Sprintf("must be positive, got %v", sessionTimeout)}
	case connectionTimeout <= 0:
		return nil, &zkerrors.ValidationError{Field: "connectionTimeout", Message: fmt.Sprintf("must be positive, got %v", connectionTimeout)}
	}

	logger := slog.Default().With("component", "zookeeper-client")
	if sessionTimeout < connectionTimeout {
		logger.Warn("session timeout is less than connection timeout",
			"session_timeout", sessionTimeout, "connection_timeout", connectionTimeout)
	}

	c := &ZookeeperClient{
		state:             newConnectionState(factory, ensembleProvider, sessionTimeout, watcher, canBeReadOnly, logger),
		connectionTimeout: connectionTimeout,
		logger:            logger,
	}
	c.retryPolicy.Store(&retryPolicy)
	return c, nil
}

// Start connects to the ensemble.
func (c *ZookeeperClient) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("client already started")
	}
	if err := c.state.start(); err != nil {
		c.started.Store(false)
		return err
	}
	return nil
}

// Close closes the current session. Close is idempotent.
func (c *ZookeeperClient) Close() error {
	c.started.Store(false)
	return c.state.close()
}

// Started reports whether the client is between Start and Close.
func (c *ZookeeperClient) Started() bool {
	return c.started.Load()
}

// ZooKeeper returns the current session.
func (c *ZookeeperClient) ZooKeeper() (zookeeper.Conn, error) {
	if !c.started.Load() {
		return nil, ErrNotStarted
	}
	return c.state.zooKeeper.get()
}

// IsConnected reports whether the session is currently connected.
func (c *ZookeeperClient) IsConnected() bool {
	return c.state.connected.Load()
}

// BlockUntilConnected waits until the session is connected, ctx is done
// or the connection timeout elapses.
func (c *ZookeeperClient) BlockUntilConnected(ctx context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	timer := time.NewTimer(c.connectionTimeout)
	defer timer.Stop()

	for {
		if c.state.connected.Load() {
			return nil
		}
		select {
		case <-c.state.waitChan():
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return &zkerrors.TimeoutError{Operation: "connect", Duration: c.connectionTimeout, Cause: zk.ErrNoServer}
		}
	}
}

// ConnectionTimeout returns the configured connection timeout.
func (c *ZookeeperClient) ConnectionTimeout() time.Duration {
	return c.connectionTimeout
}

// RetryPolicy returns the current retry policy.
func (c *ZookeeperClient) RetryPolicy() RetryPolicy {
	return *c.retryPolicy.Load()
}

// SetRetryPolicy replaces the retry policy.
func (c *ZookeeperClient) SetRetryPolicy(policy RetryPolicy) {
	if policy == nil {
		return
	}
	c.retryPolicy.Store(&policy)
}

// CurrentConnectionString returns the ensemble provider's connection string.
func (c *ZookeeperClient) CurrentConnectionString() string {
	return c.state.ensembleProvider.ConnectionString()
}

// addParentWatcher registers w for every event of every session this client opens.
func (c *ZookeeperClient) addParentWatcher(w zookeeper.Watcher) {
	c.state.parentWatchers.Offer(w)
}

// connectionState tracks the session and fans its events out to the
// parent watchers.
type connectionState struct {
	zooKeeper        *handleHolder
	ensembleProvider EnsembleProvider
	sessionTimeoutMs int
	parentWatchers   *watcherQueue
	connected        atomic.Bool
	logger           *slog.Logger

	mu      sync.Mutex
	waiters chan struct{}
}

func newConnectionState(factory ZookeeperFactory, ensembleProvider EnsembleProvider, sessionTimeout time.Duration, watcher zookeeper.Watcher, canBeReadOnly bool, logger *slog.Logger) *connectionState {
	s := &connectionState{
		ensembleProvider: ensembleProvider,
		sessionTimeoutMs: int(sessionTimeout / time.Millisecond),
		parentWatchers:   newWatcherQueue(watcher),
		logger:           logger,
		waiters:          make(chan struct{}),
	}
	s.zooKeeper = &handleHolder{
		zookeeperFactory: factory,
		ensembleProvider: ensembleProvider,
		sessionTimeoutMs: s.sessionTimeoutMs,
		canBeReadOnly:    canBeReadOnly,
		watcher:          s,
	}
	return s
}

func (s *connectionState) start() error {
	if err := s.ensembleProvider.Start(); err != nil {
		return fmt.Errorf("start ensemble provider: %w", err)
	}
	return s.zooKeeper.reset()
}

func (s *connectionState) close() error {
	s.zooKeeper.closeConn()
	s.setConnected(false)
	return s.ensembleProvider.Close()
}

func (s *connectionState) waitChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters
}

func (s *connectionState) setConnected(connected bool) {
	if s.connected.Swap(connected) == connected {
		return
	}
	s.mu.Lock()
	close(s.waiters)
	s.waiters = make(chan struct{})
	s.mu.Unlock()
}

// Process implements zookeeper.Watcher.
func (s *connectionState) Process(event zk.Event) {
	expired := false
	if event.Type == zk.EventSession {
		switch event.State {
		case zk.StateHasSession, zk.StateConnectedReadOnly:
			s.setConnected(true)
		case zk.StateDisconnected, zk.StateConnecting:
			s.setConnected(false)
		case zk.StateExpired:
			s.setConnected(false)
			expired = true
		}
	}

	for _, w := range s.parentWatchers.snapshot() {
		w.Process(event)
	}

	if expired {
		s.logger.Warn("session expired, creating a new session")
		// the expired session's own goroutine delivers this event
		go func() {
			if err := s.zooKeeper.renew(); err != nil {
				s.logger.Error("failed to re-create session", "error", err)
			}
		}()
	}
}

// handleHolder owns the live session and creates it on demand.
type handleHolder struct {
	zookeeperFactory ZookeeperFactory
	ensembleProvider EnsembleProvider
	sessionTimeoutMs int
	canBeReadOnly    bool
	watcher          zookeeper.Watcher

	mu               sync.Mutex
	conn             zookeeper.Conn
	live             bool
	connectionString string
}

func (h *handleHolder) get() (zookeeper.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil && h.live {
		return h.conn, nil
	}
	return h.openLocked()
}

func (h *handleHolder) reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked()
	_, err := h.openLocked()
	return err
}

// renew replaces a live session; it does nothing once the holder is closed.
func (h *handleHolder) renew() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.live {
		return nil
	}
	h.closeLocked()
	_, err := h.openLocked()
	return err
}

func (h *handleHolder) openLocked() (zookeeper.Conn, error) {
	h.connectionString = h.ensembleProvider.ConnectionString()
	conn, err := h.zookeeperFactory.NewZooKeeper(h.connectionString,
		time.Duration(h.sessionTimeoutMs)*time.Millisecond, h.watcher, h.canBeReadOnly)
	if err != nil {
		return nil, err
	}
	h.conn = conn
	h.live = true
	return conn, nil
}

func (h *handleHolder) closeConn() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked()
}

// closeLocked closes the session but keeps the reference so the last
// session's identity stays readable.
func (h *handleHolder) closeLocked() {
	if h.conn != nil && h.live {
		h.conn.Close()
	}
	h.live = false
}
