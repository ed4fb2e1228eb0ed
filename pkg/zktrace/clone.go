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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/internal/tracing"
	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/pkg/framework"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// Clone stages reported in errors.CloneError.
const (
	StageExtract    = "extract"
	StageConnect    = "connect"
	StageConstruct  = "construct"
	StageStart      = "start"
	StageCloseDonor = "close_donor"
)

// CloneConn replaces donor with a traced connection that resumes donor's
// session, then closes donor. connectString lists the ensemble servers.
//
// If an error is returned with errors.IsRecoverable true, donor is still
// open and usable.
func CloneConn(donor *zk.Conn, connectString string, opts ...Option) (*TracedConn, error) {
	in := newInstruments(opts)
	conn, err := cloneConn(donor, connectString, in)
	in.recordClone(context.Background(), err)
	return conn, err
}

func cloneConn(donor *zk.Conn, connectString string, in *instruments) (*TracedConn, error) {
	params, err := ExtractConnParameters(donor)
	if err != nil {
		return nil, &zkerrors.CloneError{Stage: StageExtract, Cause: err}
	}
	servers := framework.SplitConnectString(connectString)
	if len(servers) == 0 {
		return nil, &zkerrors.CloneError{Stage: StageExtract, Cause: &zkerrors.ValidationError{
			Field:   "connectString",
			Message: "must not be empty",
		}}
	}

	conn, gate, err := resumeConn(servers, params.SessionTimeout, params, nil)
	if err != nil {
		return nil, &zkerrors.CloneError{Stage: StageConnect, Cause: err}
	}

	donor.Close()
	gate.release()

	in.logger.Debug("cloned zookeeper connection", "session_id", params.SessionID, "connect_string", connectString)
	return newTracedConn(conn, in), nil
}

// CloneClient replaces donor with a client whose sessions are traced. The
// clone resumes donor's live session when it can and starts a new one
// otherwise. donor is closed once the clone has started.
//
// If an error is returned with errors.IsRecoverable true, donor is still
// open and usable.
func CloneClient(donor *framework.ZookeeperClient, opts ...Option) (*TracedClient, error) {
	in := newInstruments(opts)
	client, err := cloneClient(donor, in)
	in.recordClone(context.Background(), err)
	return client, err
}

func cloneClient(donor *framework.ZookeeperClient, in *instruments) (*TracedClient, error) {
	params, err := ExtractSessionParameters(donor)
	if err != nil {
		return nil, &zkerrors.CloneError{Stage: StageExtract, Cause: err}
	}
	if params.Conn == nil {
		return nil, &zkerrors.CloneError{
			Stage: StageExtract,
			Cause: &zkerrors.DonorUnusableError{Reason: "session client was never started"},
		}
	}

	inner := params.Factory
	if tf, ok := inner.(*tracingFactory); ok {
		inner = tf.inner
	}
	factory := &tracingFactory{inner: inner, in: in}
	factory.prepareResume(params, in)

	clone, err := framework.NewZookeeperClientWithFactory(factory, params.EnsembleProvider,
		params.SessionTimeout, params.ConnectionTimeout, params.DefaultWatcher, params.RetryPolicy, params.CanBeReadOnly)
	if err != nil {
		return nil, &zkerrors.CloneError{Stage: StageConstruct, Cause: err}
	}

	if err := clone.Start(); err != nil {
		factory.abort()
		_ = clone.Close()
		return nil, &zkerrors.CloneError{Stage: StageStart, Cause: err}
	}

	closeErr := donor.Close()
	factory.release()
	if closeErr != nil {
		_ = clone.Close()
		return nil, &zkerrors.CloneError{Stage: StageCloseDonor, DonorClosed: true, Cause: closeErr}
	}

	in.logger.Debug("cloned zookeeper client",
		"session_id", params.SessionID,
		"connect_string", params.ConnectString,
		"resumed", factory.resumed())
	return &TracedClient{ZookeeperClient: clone, ctx: context.Background(), in: in}, nil
}

func (in *instruments) recordClone(ctx context.Context, err error) {
	if in.metrics == nil {
		return
	}
	if err == nil {
		in.metrics.RecordClone(ctx, tracing.CloneResultTraced, "")
		return
	}
	result := tracing.CloneResultFallback
	if !zkerrors.IsRecoverable(err) {
		result = tracing.CloneResultFailed
	}
	in.metrics.RecordClone(ctx, result, errorType(err))
}

func errorType(err error) string {
	var classifier zkerrors.ErrorClassifier
	if zkerrors.As(err, &classifier) {
		return classifier.ErrorType()
	}
	return "unknown"
}

// resumeTarget is the session the first connection of a clone reattaches to.
type resumeTarget struct {
	conn      *ConnParameters
	sessionID int64
	passwd    []byte
}

// tracingFactory wraps every session it opens in a TracedConn. Its first
// session resumes the donor's when a resume target is set.
type tracingFactory struct {
	inner framework.ZookeeperFactory
	in    *instruments

	mu             sync.Mutex
	target         *resumeTarget
	gate           *dialGate
	resumedSession bool
}

var _ framework.ZookeeperFactory = (*tracingFactory)(nil)

func (f *tracingFactory) prepareResume(params *SessionParameters, in *instruments) {
	if params.Conn == nil {
		return
	}
	live := unwrapConn(params.Conn)

	if zc, ok := live.(*zk.Conn); ok {
		cp, err := ExtractConnParameters(zc)
		if err != nil {
			in.logger.Debug("starting a new session for clone", "reason", err)
			return
		}
		f.target = &resumeTarget{conn: cp, sessionID: cp.SessionID, passwd: cp.SessionPassword}
		return
	}

	if closed, ok := live.(interface{ Closed() bool }); ok && closed.Closed() {
		return
	}
	if live.SessionID() != 0 {
		f.target = &resumeTarget{sessionID: live.SessionID()}
	}
}

// NewZooKeeper implements framework.ZookeeperFactory.
func (f *tracingFactory) NewZooKeeper(connectString string, sessionTimeout time.Duration, watcher zookeeper.Watcher, canBeReadOnly bool) (zookeeper.Conn, error) {
	f.mu.Lock()
	target := f.target
	f.target = nil
	f.mu.Unlock()

	conn, err := f.open(target, connectString, sessionTimeout, watcher, canBeReadOnly)
	if err != nil {
		return nil, err
	}
	if traced, ok := conn.(*TracedConn); ok {
		return traced, nil
	}
	return newTracedConn(conn, f.in), nil
}

func (f *tracingFactory) open(target *resumeTarget, connectString string, sessionTimeout time.Duration, watcher zookeeper.Watcher, canBeReadOnly bool) (zookeeper.Conn, error) {
	if target == nil {
		return f.inner.NewZooKeeper(connectString, sessionTimeout, watcher, canBeReadOnly)
	}

	if target.conn != nil {
		var callback zk.EventCallback
		if watcher != nil {
			callback = watcher.Process
		}
		conn, gate, err := resumeConn(framework.SplitConnectString(connectString), sessionTimeout, target.conn, callback)
		if err != nil {
			return nil, fmt.Errorf("resume session 0x%x: %w", target.sessionID, err)
		}
		f.mu.Lock()
		f.gate = gate
		f.resumedSession = true
		f.mu.Unlock()
		return conn, nil
	}

	if resumer, ok := f.inner.(framework.SessionResumer); ok {
		conn, err := resumer.ResumeZooKeeper(connectString, sessionTimeout, watcher, canBeReadOnly, target.sessionID, target.passwd)
		if err == nil {
			f.mu.Lock()
			f.resumedSession = true
			f.mu.Unlock()
		}
		return conn, err
	}
	return f.inner.NewZooKeeper(connectString, sessionTimeout, watcher, canBeReadOnly)
}

func (f *tracingFactory) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		f.gate.release()
	}
}

func (f *tracingFactory) abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		f.gate.abort()
	}
}

func (f *tracingFactory) resumed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumedSession
}
