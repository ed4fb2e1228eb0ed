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
	"errors"
	"net"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/internal/introspect"
)

var errGateAborted = errors.New("zktrace: clone aborted before connecting")

// dialGate holds a replacement connection's dials until the donor is
// closed, so only one connection for a session is open at a time.
type dialGate struct {
	dialer zk.Dialer

	released    chan struct{}
	aborted     chan struct{}
	releaseOnce sync.Once
	abortOnce   sync.Once
}

func newDialGate(dialer zk.Dialer) *dialGate {
	if dialer == nil {
		dialer = net.DialTimeout
	}
	return &dialGate{
		dialer:   dialer,
		released: make(chan struct{}),
		aborted:  make(chan struct{}),
	}
}

func (g *dialGate) dial(network, address string, timeout time.Duration) (net.Conn, error) {
	select {
	case <-g.released:
	case <-g.aborted:
		return nil, errGateAborted
	}
	select {
	case <-g.aborted:
		return nil, errGateAborted
	default:
	}
	return g.dialer(network, address, timeout)
}

func (g *dialGate) release() {
	g.releaseOnce.Do(func() { close(g.released) })
}

func (g *dialGate) abort() {
	g.abortOnce.Do(func() { close(g.aborted) })
}

// connectOptions collects zk connect options; the option type is
// unexported upstream so the slice type has to be inferred.
func connectOptions[O any](opts ...O) []O {
	return opts
}

// resumeConn opens a connection that will resume the session in p once the
// returned gate is released. callback replaces p.DefaultWatcher when set.
// On error nothing is left open.
func resumeConn(servers []string, sessionTimeout time.Duration, p *ConnParameters, callback zk.EventCallback) (*zk.Conn, *dialGate, error) {
	gate := newDialGate(p.Dialer)

	if callback == nil {
		callback = p.DefaultWatcher
	}
	opts := connectOptions(zk.WithDialer(gate.dial))
	if p.HostProvider != nil {
		opts = append(opts, zk.WithHostProvider(p.HostProvider))
	}
	if callback != nil {
		opts = append(opts, zk.WithEventCallback(callback))
	}
	if p.Logger != nil {
		opts = append(opts, zk.WithLogger(p.Logger))
	}

	conn, _, err := zk.Connect(servers, sessionTimeout, opts...)
	if err != nil {
		gate.abort()
		return nil, nil, err
	}

	if err := seedSession(conn, p.SessionID, p.SessionPassword); err != nil {
		gate.abort()
		conn.Close()
		return nil, nil, err
	}
	return conn, gate, nil
}

// seedSession writes a session identity into a connection that has not dialed yet.
func seedSession(conn *zk.Conn, sessionID int64, passwd []byte) error {
	if err := introspect.Set(conn, "Conn", "sessionID", sessionID); err != nil {
		return err
	}
	return introspect.Set(conn, "Conn", "passwd", append([]byte(nil), passwd...))
}
