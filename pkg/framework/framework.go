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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-zookeeper/zk"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// Framework is the fluent client API.
type Framework interface {
	Start() error
	Close() error
	State() FrameworkState
	Started() bool

	Create() *CreateBuilder
	Delete() *DeleteBuilder
	CheckExists() *ExistsBuilder
	GetData() *GetDataBuilder
	SetData() *SetDataBuilder
	GetChildren() *GetChildrenBuilder
	GetACL() *GetACLBuilder
	SetACL() *SetACLBuilder
	Sync() *SyncBuilder
	// SyncPath performs a background sync of path and reports it to the
	// curator listeners with backgroundContext as the event context.
	SyncPath(path string, backgroundContext any)
	InTransaction() *Transaction

	ConnectionStateListenable() *Listenable[ConnectionStateListener]
	CuratorListenable() *Listenable[CuratorListener]
	UnhandledErrorListenable() *Listenable[UnhandledErrorListener]

	NonNamespaceView() Framework
	UsingNamespace(namespace string) Framework
	Namespace() string
	NewNamespaceAwareEnsurePath(path string) *EnsurePath

	ZookeeperClient() SessionClient
}

// Client implements Framework. Namespace views share the core of the
// client they were derived from.
type Client struct {
	core      *core
	namespace *namespace
}

var _ Framework = (*Client)(nil)

type core struct {
	client         *ZookeeperClient
	state          atomic.Int32
	defaultACL     []zk.ACL
	defaultWatcher zookeeper.Watcher
	logger         *slog.Logger

	background *zookeeper.Dispatcher
	events     *zookeeper.Dispatcher

	connectionStateListeners *Listenable[ConnectionStateListener]
	curatorListeners         *Listenable[CuratorListener]
	unhandledErrorListeners  *Listenable[UnhandledErrorListener]

	connMu        sync.Mutex
	everConnected bool
	lastState     ConnectionState

	namespaces sync.Map // string -> *namespace

	// self is the root view handed to listeners.
	self *Client
}

// NewClient returns a latent client for connectString.
func NewClient(connectString string, retryPolicy RetryPolicy, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if connectString == "" && o.ensembleProvider == nil {
		return nil, &zkerrors.ValidationError{
			Field:      "connectString",
			Message:    "must not be empty",
			Suggestion: "pass host:port pairs separated by commas",
		}
	}
	if o.ensembleProvider == nil {
		o.ensembleProvider = NewFixedEnsembleProvider(connectString)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	if o.factory == nil {
		o.factory = DefaultZookeeperFactory{Logger: logger}
	}

	ns, err := newNamespace(o.namespace)
	if err != nil {
		return nil, err
	}

	c := &core{
		defaultACL:               o.defaultACL,
		defaultWatcher:           o.defaultWatcher,
		logger:                   logger.With("component", "framework"),
		connectionStateListeners: NewListenable[ConnectionStateListener](),
		curatorListeners:         NewListenable[CuratorListener](),
		unhandledErrorListeners:  NewListenable[UnhandledErrorListener](),
	}
	c.self = &Client{core: c, namespace: ns}

	zkClient, err := NewZookeeperClientWithFactory(o.factory, o.ensembleProvider,
		o.sessionTimeout, o.connectionTimeout, zookeeper.WatcherFunc(c.process), retryPolicy, o.canBeReadOnly)
	if err != nil {
		return nil, err
	}
	zkClient.logger = logger.With("component", "zookeeper-client")
	c.client = zkClient
	return c.self, nil
}

// Start starts the client. A client can be started only once.
func (c *Client) Start() error {
	if !c.core.state.CompareAndSwap(int32(Latent), int32(Started)) {
		return fmt.Errorf("cannot be started more than once (state %s)", c.State())
	}
	c.core.background = zookeeper.NewDispatcher()
	c.core.events = zookeeper.NewDispatcher()

	if err := c.core.client.Start(); err != nil {
		c.core.logger.Error("failed to start session client", "error", err)
		return err
	}
	return nil
}

// Close stops the client and closes its session.
func (c *Client) Close() error {
	if !c.core.state.CompareAndSwap(int32(Started), int32(Stopped)) {
		return nil
	}

	done := make(chan struct{})
	closing := &CuratorEvent{Type: EventClosing}
	if err := c.core.events.Submit(func() {
		defer close(done)
		c.core.notifyListeners(closing)
	}); err != nil {
		close(done)
	}
	<-done

	c.core.background.Close()
	c.core.events.Close()
	c.core.curatorListeners.Clear()
	c.core.unhandledErrorListeners.Clear()
	c.core.connectionStateListeners.Clear()

	return c.core.client.Close()
}

// State returns the lifecycle state.
func (c *Client) State() FrameworkState {
	return FrameworkState(c.core.state.Load())
}

// Started reports whether the client is started.
func (c *Client) Started() bool {
	return c.State() == Started
}

func (c *Client) Create() *CreateBuilder { return newCreateBuilder(c) }

func (c *Client) Delete() *DeleteBuilder { return newDeleteBuilder(c) }

func (c *Client) CheckExists() *ExistsBuilder { return newExistsBuilder(c) }

func (c *Client) GetData() *GetDataBuilder { return newGetDataBuilder(c) }

func (c *Client) SetData() *SetDataBuilder { return newSetDataBuilder(c) }

func (c *Client) GetChildren() *GetChildrenBuilder { return newGetChildrenBuilder(c) }

func (c *Client) GetACL() *GetACLBuilder { return newGetACLBuilder(c) }

func (c *Client) SetACL() *SetACLBuilder { return newSetACLBuilder(c) }

func (c *Client) Sync() *SyncBuilder { return newSyncBuilder(c) }

func (c *Client) InTransaction() *Transaction { return newTransaction(c) }

// SyncPath implements Framework.
func (c *Client) SyncPath(path string, backgroundContext any) {
	_ = c.Sync().InBackgroundWithContext(nil, backgroundContext).ForPath(path)
}

func (c *Client) ConnectionStateListenable() *Listenable[ConnectionStateListener] {
	return c.core.connectionStateListeners
}

func (c *Client) CuratorListenable() *Listenable[CuratorListener] {
	return c.core.curatorListeners
}

func (c *Client) UnhandledErrorListenable() *Listenable[UnhandledErrorListener] {
	return c.core.unhandledErrorListeners
}

// NonNamespaceView returns a view of the client with no namespace.
func (c *Client) NonNamespaceView() Framework {
	return c.UsingNamespace("")
}

// UsingNamespace returns a view of the client under namespace. The view
// shares the session, listeners and lifecycle of c. An invalid namespace
// is reported to the unhandled error listeners and c is returned.
func (c *Client) UsingNamespace(name string) Framework {
	if cached, ok := c.core.namespaces.Load(name); ok {
		return &Client{core: c.core, namespace: cached.(*namespace)}
	}
	ns, err := newNamespace(name)
	if err != nil {
		c.core.logUnhandled("invalid namespace", err)
		return c
	}
	actual, _ := c.core.namespaces.LoadOrStore(name, ns)
	return &Client{core: c.core, namespace: actual.(*namespace)}
}

// Namespace returns the namespace, or "" when there is none.
func (c *Client) Namespace() string {
	return c.namespace.name
}

// NewNamespaceAwareEnsurePath returns an EnsurePath for path under the namespace.
func (c *Client) NewNamespaceAwareEnsurePath(path string) *EnsurePath {
	return NewEnsurePath(c.namespace.fix(path))
}

// ZookeeperClient returns the session-level client.
func (c *Client) ZookeeperClient() SessionClient {
	return c.core.client
}

// fixPath validates path, ensures the namespace node exists and returns
// the absolute path.
func (c *Client) fixPath(ctx context.Context, path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.namespace.ensure(ctx, c.core.client); err != nil {
		return "", err
	}
	return c.namespace.fix(path), nil
}

func (c *Client) unfixPath(path string) string {
	return c.namespace.unfix(path)
}

// runBackground executes op on the background dispatcher and delivers the
// event it returns.
func (c *Client) runBackground(bg backgrounding, op func() *CuratorEvent) {
	run := func() {
		ev := op()
		ev.Context = bg.context
		c.deliver(bg.callback, ev)
	}
	if c.core.background == nil {
		c.core.logUnhandled("background operation on a client that is not started", ErrNotStarted)
		return
	}
	if err := c.core.background.Submit(run); err != nil {
		c.core.logUnhandled("background operation rejected", err)
	}
}

// deliver hands ev to callback, or to the curator listeners when callback is nil.
func (c *Client) deliver(callback BackgroundCallback, ev *CuratorEvent) {
	dispatch := func() {
		if callback == nil {
			c.core.notifyListeners(ev)
			return
		}
		defer c.core.recoverListener("background callback")
		callback(c, ev)
	}
	if c.core.events == nil || c.core.events.Submit(dispatch) != nil {
		c.core.logger.Debug("dropping event, client is closed", "type", ev.Type.String(), "path", ev.Path)
	}
}

// watch waits for one event on ch and delivers it to w, or to the curator
// listeners as an EventWatched when w is nil.
func (c *Client) watch(ch <-chan zk.Event, w zookeeper.Watcher) {
	if ch == nil {
		return
	}
	go func() {
		ev, ok := <-ch
		if !ok {
			return
		}
		ev.Path = c.unfixPath(ev.Path)
		if w != nil {
			if c.core.events != nil {
				_ = c.core.events.Submit(func() {
					defer c.core.recoverListener("watcher")
					w.Process(ev)
				})
			}
			return
		}
		c.deliver(nil, &CuratorEvent{Type: EventWatched, Path: ev.Path, WatchedEvent: &ev})
	}()
}

func (c *core) notifyListeners(ev *CuratorEvent) {
	c.curatorListeners.ForEach(func(l CuratorListener) {
		defer c.recoverListener("curator listener")
		if err := l.EventReceived(c.self, ev); err != nil {
			c.logUnhandled("curator listener failed", err)
		}
	})
}

func (c *core) recoverListener(what string) {
	if r := recover(); r != nil {
		c.logUnhandled(what+" panicked", fmt.Errorf("%v", r))
	}
}

func (c *core) logUnhandled(message string, err error) {
	if c.unhandledErrorListeners.Size() == 0 {
		c.logger.Error(message, "error", err)
		return
	}
	c.unhandledErrorListeners.ForEach(func(l UnhandledErrorListener) {
		l.UnhandledError(message, err)
	})
}

// process is the session client's default watcher.
func (c *core) process(event zk.Event) {
	if event.Type == zk.EventSession {
		c.processSessionEvent(event)
	}
	if c.defaultWatcher != nil {
		c.defaultWatcher.Process(event)
	}
}

// processSessionEvent maps session events to connection states.
func (c *core) processSessionEvent(event zk.Event) {

	c.connMu.Lock()
	var (
		next    ConnectionState
		changed = true
	)
	switch event.State {
	case zk.StateHasSession:
		if !c.everConnected {
			next = Connected
		} else if c.lastState.IsConnected() {
			changed = false
		} else {
			next = Reconnected
		}
		c.everConnected = true
	case zk.StateConnectedReadOnly:
		next = ReadOnly
		c.everConnected = true
	case zk.StateDisconnected:
		changed = c.everConnected && c.lastState.IsConnected()
		next = Suspended
	case zk.StateExpired:
		changed = c.everConnected && c.lastState != Lost
		next = Lost
	default:
		changed = false
	}
	if changed {
		c.lastState = next
	}
	c.connMu.Unlock()

	if !changed {
		return
	}
	c.logger.Info("connection state changed", "state", next.String())
	if c.events == nil {
		return
	}
	_ = c.events.Submit(func() {
		c.connectionStateListeners.ForEach(func(l ConnectionStateListener) {
			defer c.recoverListener("connection state listener")
			l.StateChanged(c.self, next)
		})
	})
}
