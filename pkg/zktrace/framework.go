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

	"go.opentelemetry.io/otel/trace"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/pkg/framework"
)

// FrameworkProxy is a framework.Framework that opens a dispatcher span
// around every call and forwards it to a delegate. Builders are returned
// unwrapped, so their terminal operations run under the caller's context.
//
// ZookeeperClient is the exception: it replaces the delegate's session
// client with a traced clone on every call.
type FrameworkProxy struct {
	delegate framework.Framework
	ctx      context.Context
	in       *instruments
}

var _ framework.Framework = (*FrameworkProxy)(nil)

// WrapFramework returns a proxy for delegate.
func WrapFramework(delegate framework.Framework, opts ...Option) (*FrameworkProxy, error) {
	if delegate == nil {
		return nil, &zkerrors.ValidationError{Field: "delegate", Message: "must not be nil"}
	}
	return &FrameworkProxy{delegate: delegate, ctx: context.Background(), in: newInstruments(opts)}, nil
}

// WithContext returns a copy of p whose dispatcher spans are children of
// the span in ctx, when there is one.
func (p *FrameworkProxy) WithContext(ctx context.Context) *FrameworkProxy {
	if ctx == nil {
		ctx = context.Background()
	}
	cp := *p
	cp.ctx = ctx
	return &cp
}

// Delegate returns the wrapped framework.
func (p *FrameworkProxy) Delegate() framework.Framework {
	return p.delegate
}

func (p *FrameworkProxy) dispatch(op string) func(error) {
	_, end := p.in.startDispatcher(p.ctx, op)
	return end
}

func (p *FrameworkProxy) Start() (err error) {
	end := p.dispatch("start")
	defer func() { end(err) }()
	return p.delegate.Start()
}

func (p *FrameworkProxy) Close() (err error) {
	end := p.dispatch("close")
	defer func() { end(err) }()
	return p.delegate.Close()
}

func (p *FrameworkProxy) State() framework.FrameworkState {
	defer p.dispatch("state")(nil)
	return p.delegate.State()
}

func (p *FrameworkProxy) Started() bool {
	defer p.dispatch("started")(nil)
	return p.delegate.Started()
}

func (p *FrameworkProxy) Create() *framework.CreateBuilder {
	defer p.dispatch("create")(nil)
	return p.delegate.Create()
}

func (p *FrameworkProxy) Delete() *framework.DeleteBuilder {
	defer p.dispatch("delete")(nil)
	return p.delegate.Delete()
}

func (p *FrameworkProxy) CheckExists() *framework.ExistsBuilder {
	defer p.dispatch("check_exists")(nil)
	return p.delegate.CheckExists()
}

func (p *FrameworkProxy) GetData() *framework.GetDataBuilder {
	defer p.dispatch("get_data")(nil)
	return p.delegate.GetData()
}

func (p *FrameworkProxy) SetData() *framework.SetDataBuilder {
	defer p.dispatch("set_data")(nil)
	return p.delegate.SetData()
}

func (p *FrameworkProxy) GetChildren() *framework.GetChildrenBuilder {
	defer p.dispatch("get_children")(nil)
	return p.delegate.GetChildren()
}

func (p *FrameworkProxy) GetACL() *framework.GetACLBuilder {
	defer p.dispatch("get_acl")(nil)
	return p.delegate.GetACL()
}

func (p *FrameworkProxy) SetACL() *framework.SetACLBuilder {
	defer p.dispatch("set_acl")(nil)
	return p.delegate.SetACL()
}

func (p *FrameworkProxy) Sync() *framework.SyncBuilder {
	defer p.dispatch("sync")(nil)
	return p.delegate.Sync()
}

func (p *FrameworkProxy) SyncPath(path string, backgroundContext any) {
	defer p.dispatch("sync_path")(nil)
	p.delegate.SyncPath(path, backgroundContext)
}

func (p *FrameworkProxy) InTransaction() *framework.Transaction {
	defer p.dispatch("in_transaction")(nil)
	return p.delegate.InTransaction()
}

func (p *FrameworkProxy) ConnectionStateListenable() *framework.Listenable[framework.ConnectionStateListener] {
	defer p.dispatch("connection_state_listenable")(nil)
	return p.delegate.ConnectionStateListenable()
}

func (p *FrameworkProxy) CuratorListenable() *framework.Listenable[framework.CuratorListener] {
	defer p.dispatch("curator_listenable")(nil)
	return p.delegate.CuratorListenable()
}

func (p *FrameworkProxy) UnhandledErrorListenable() *framework.Listenable[framework.UnhandledErrorListener] {
	defer p.dispatch("unhandled_error_listenable")(nil)
	return p.delegate.UnhandledErrorListenable()
}

func (p *FrameworkProxy) NonNamespaceView() framework.Framework {
	defer p.dispatch("non_namespace_view")(nil)
	return p.delegate.NonNamespaceView()
}

func (p *FrameworkProxy) UsingNamespace(namespace string) framework.Framework {
	defer p.dispatch("using_namespace")(nil)
	return p.delegate.UsingNamespace(namespace)
}

func (p *FrameworkProxy) Namespace() string {
	defer p.dispatch("namespace")(nil)
	return p.delegate.Namespace()
}

func (p *FrameworkProxy) NewNamespaceAwareEnsurePath(path string) *framework.EnsurePath {
	defer p.dispatch("new_namespace_aware_ensure_path")(nil)
	return p.delegate.NewNamespaceAwareEnsurePath(path)
}

// ZookeeperClient returns a traced clone of the delegate's session client
// and closes the original. Each call clones again. If the clone cannot be
// made the delegate's own client is returned.
func (p *FrameworkProxy) ZookeeperClient() framework.SessionClient {
	ctx, end := p.in.startDispatcher(p.ctx, "zookeeper_client")

	raw := p.delegate.ZookeeperClient()
	traced, err := p.tracedZookeeperClient(ctx, raw)
	switch {
	case err == nil:
		end(nil)
		return traced
	case zkerrors.IsRecoverable(err):
		trace.SpanFromContext(ctx).SetAttributes(AttrFallback.Bool(true))
		end(nil)
	default:
		end(err)
	}
	return raw
}

// TracedZookeeperClient is ZookeeperClient without the fallback. Errors
// for which errors.IsRecoverable is false mean the delegate's client was
// closed and could not be replaced.
func (p *FrameworkProxy) TracedZookeeperClient() (client *TracedClient, err error) {
	ctx, end := p.in.startDispatcher(p.ctx, "zookeeper_client")
	defer func() { end(err) }()
	return p.tracedZookeeperClient(ctx, p.delegate.ZookeeperClient())
}

func (p *FrameworkProxy) tracedZookeeperClient(ctx context.Context, raw framework.SessionClient) (*TracedClient, error) {
	var donor *framework.ZookeeperClient
	switch c := raw.(type) {
	case *framework.ZookeeperClient:
		donor = c
	case *TracedClient:
		donor = c.ZookeeperClient
	}

	var (
		client *TracedClient
		err    error
	)
	if donor == nil {
		err = &zkerrors.CloneError{
			Stage: StageExtract,
			Cause: &zkerrors.DonorUnusableError{Reason: "unsupported session client type"},
		}
	} else {
		client, err = cloneClient(donor, p.in)
	}

	p.in.recordClone(ctx, err)
	if err == nil {
		return client.WithContext(p.ctx), nil
	}

	if zkerrors.IsRecoverable(err) {
		p.in.logger.Debug("returning untraced session client", "error", err)
		p.in.fallbackWarn.Do(func() {
			p.in.logger.Warn("zookeeper session tracing unavailable, using untraced client", "error", err)
		})
	} else {
		p.in.logger.Error("session client closed during clone", "error", err)
	}
	return nil, err
}
