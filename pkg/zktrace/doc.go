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

// Package zktrace instruments ZooKeeper clients with OpenTelemetry.
//
// NewClient builds a framework client wrapped in a FrameworkProxy. Every
// proxy method opens a dispatcher span, and every session operation made
// through a TracedConn opens an ordinary span under the caller's context:
//
//	client, err := zktrace.NewClient("localhost:2181", framework.NewExponentialBackoffRetry(time.Second, 3),
//	    zktrace.WithTracerProvider(tp))
//	if err != nil {
//	    return err
//	}
//	if err := client.Start(); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	_, err = client.Create().WithContext(ctx).ForPath("/app/lock", nil)
//
// The session-level client of an already built framework client cannot be
// wrapped in place because it owns a live connection. FrameworkProxy.ZookeeperClient
// and CloneClient instead read the donor's construction parameters from its
// unexported fields, build an equivalent client whose sessions are traced,
// and close the donor. CloneConn does the same for a bare *zk.Conn. When the
// donor's layout cannot be read the proxy returns the donor unchanged.
package zktrace
