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
	"time"

	"github.com/tombee/zktrace/pkg/framework"
)

// NewClient returns a traced framework client for connectString using the
// default session and connection timeouts.
func NewClient(connectString string, retryPolicy framework.RetryPolicy, opts ...Option) (*FrameworkProxy, error) {
	return NewClientWithTimeouts(connectString, DefaultSessionTimeout(), DefaultConnectionTimeout(), retryPolicy, opts...)
}

// NewClientWithTimeouts returns a traced framework client for connectString.
// The client is latent; call Start before using it.
func NewClientWithTimeouts(connectString string, sessionTimeout, connectionTimeout time.Duration, retryPolicy framework.RetryPolicy, opts ...Option) (*FrameworkProxy, error) {
	in := newInstruments(opts)
	o := resolveOptions(opts)

	inner := o.factory
	if inner == nil {
		inner = framework.DefaultZookeeperFactory{Logger: in.logger}
	}

	frameworkOpts := append([]framework.Option{}, o.frameworkOptions...)
	frameworkOpts = append(frameworkOpts,
		framework.WithSessionTimeout(sessionTimeout),
		framework.WithConnectionTimeout(connectionTimeout),
		framework.WithZookeeperFactory(&tracingFactory{inner: inner, in: in}),
	)
	if o.logger != nil {
		frameworkOpts = append(frameworkOpts, framework.WithLogger(o.logger))
	}

	delegate, err := framework.NewClient(connectString, retryPolicy, frameworkOpts...)
	if err != nil {
		return nil, err
	}
	return &FrameworkProxy{delegate: delegate, ctx: context.Background(), in: in}, nil
}
