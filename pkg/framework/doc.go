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

// Package framework is a fluent ZooKeeper client in the style of Apache
// Curator, built on github.com/go-zookeeper/zk.
//
// A Client owns a ZookeeperClient, which in turn owns the live session
// produced by a ZookeeperFactory. Operations are issued through builders:
//
//	client, err := framework.NewClient("localhost:2181", framework.NewExponentialBackoffRetry(time.Second, 3))
//	if err != nil {
//	    return err
//	}
//	if err := client.Start(); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	path, err := client.Create().CreatingParentsIfNeeded().ForPath("/app/config", data)
//
// Foreground operations run inside a retry loop driven by the client's
// RetryPolicy. Background operations run in submission order and report
// through a BackgroundCallback or the CuratorListenable listeners.
package framework
