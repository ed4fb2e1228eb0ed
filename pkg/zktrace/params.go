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
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/internal/introspect"
	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/pkg/framework"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// ConnParameters are the values needed to reopen a *zk.Conn's session.
type ConnParameters struct {
	SessionID       int64
	SessionPassword []byte
	SessionTimeout  time.Duration
	// DefaultWatcher is the connection's event callback, or nil.
	DefaultWatcher zk.EventCallback
	// ReadOnly is always false; go-zookeeper has no read-only mode.
	ReadOnly     bool
	HostProvider zk.HostProvider
	Dialer       zk.Dialer
	Logger       zk.Logger
}

// ExtractConnParameters reads the session identity and construction
// options of conn. A connection that never established a session, or that
// has been closed, is reported as a *errors.DonorUnusableError.
func ExtractConnParameters(conn *zk.Conn) (*ConnParameters, error) {
	if conn == nil {
		return nil, &zkerrors.DonorUnusableError{Reason: "connection is nil"}
	}

	quit, err := introspect.Get[chan struct{}](conn, "Conn", "shouldQuit")
	if err != nil {
		return nil, err
	}
	if isClosed(quit) {
		return nil, &zkerrors.DonorUnusableError{Reason: "connection is closed"}
	}
	if conn.SessionID() == 0 {
		return nil, &zkerrors.DonorUnusableError{Reason: "connection has no session"}
	}

	p := &ConnParameters{SessionID: conn.SessionID()}
	if p.SessionPassword, err = introspect.Get[[]byte](conn, "Conn", "passwd"); err != nil {
		return nil, err
	}
	timeoutMs, err := introspect.Get[int32](conn, "Conn", "sessionTimeoutMs")
	if err != nil {
		return nil, err
	}
	p.SessionTimeout = time.Duration(timeoutMs) * time.Millisecond
	if p.DefaultWatcher, err = introspect.Get[zk.EventCallback](conn, "Conn", "eventCallback"); err != nil {
		return nil, err
	}
	if p.HostProvider, err = introspect.Get[zk.HostProvider](conn, "Conn", "hostProvider"); err != nil {
		return nil, err
	}
	if p.Dialer, err = introspect.Get[zk.Dialer](conn, "Conn", "dialer"); err != nil {
		return nil, err
	}
	if p.Logger, err = introspect.Get[zk.Logger](conn, "Conn", "logger"); err != nil {
		return nil, err
	}

	p.SessionPassword = append([]byte(nil), p.SessionPassword...)
	return p, nil
}

func isClosed(ch chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// SessionParameters are the values needed to rebuild a
// *framework.ZookeeperClient.
type SessionParameters struct {
	EnsembleProvider  framework.EnsembleProvider
	SessionTimeout    time.Duration
	ConnectionTimeout time.Duration
	// DefaultWatcher is the head of the client's parent watchers, or nil.
	DefaultWatcher zookeeper.Watcher
	RetryPolicy    framework.RetryPolicy
	CanBeReadOnly  bool
	Factory        framework.ZookeeperFactory
	ConnectString  string

	// Conn is the donor's last session, or nil if it was never started.
	Conn zookeeper.Conn
	// SessionID and SessionPassword identify Conn's session. The password
	// is only known when Conn is backed by a *zk.Conn.
	SessionID       int64
	SessionPassword []byte
}

type watcherPeeker interface {
	Peek() zookeeper.Watcher
}

// ExtractSessionParameters reads the construction parameters of client.
func ExtractSessionParameters(client *framework.ZookeeperClient) (*SessionParameters, error) {
	if client == nil {
		return nil, &zkerrors.DonorUnusableError{Reason: "session client is nil"}
	}

	state, err := introspect.Get[any](client, "ZookeeperClient", "state")
	if err != nil {
		return nil, err
	}
	timeoutMs, err := introspect.Get[int](state, "connectionState", "sessionTimeoutMs")
	if err != nil {
		return nil, err
	}
	ensemble, err := introspect.Get[framework.EnsembleProvider](state, "connectionState", "ensembleProvider")
	if err != nil {
		return nil, err
	}
	watchers, err := introspect.Get[watcherPeeker](state, "connectionState", "parentWatchers")
	if err != nil {
		return nil, err
	}
	holder, err := introspect.Get[any](state, "connectionState", "zooKeeper")
	if err != nil {
		return nil, err
	}
	factory, err := introspect.Get[framework.ZookeeperFactory](holder, "handleHolder", "zookeeperFactory")
	if err != nil {
		return nil, err
	}
	canBeReadOnly, err := introspect.Get[bool](holder, "handleHolder", "canBeReadOnly")
	if err != nil {
		return nil, err
	}
	conn, err := introspect.Get[zookeeper.Conn](holder, "handleHolder", "conn")
	if err != nil {
		return nil, err
	}

	p := &SessionParameters{
		EnsembleProvider:  ensemble,
		SessionTimeout:    time.Duration(timeoutMs) * time.Millisecond,
		ConnectionTimeout: client.ConnectionTimeout(),
		RetryPolicy:       client.RetryPolicy(),
		CanBeReadOnly:     canBeReadOnly,
		Factory:           factory,
		ConnectString:     client.CurrentConnectionString(),
		Conn:              conn,
	}
	if watchers != nil {
		p.DefaultWatcher = watchers.Peek()
	}
	if conn != nil {
		p.SessionID = conn.SessionID()
	}
	return p, nil
}

// unwrapConn peels TracedConn and similar wrappers off conn.
func unwrapConn(conn zookeeper.Conn) zookeeper.Conn {
	for {
		u, ok := conn.(interface{ Unwrap() zookeeper.Conn })
		if !ok {
			return conn
		}
		conn = u.Unwrap()
	}
}
