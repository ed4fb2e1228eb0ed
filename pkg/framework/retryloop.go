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
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// IsRetryable reports whether err is a transient coordination failure
// worth retrying under the client's RetryPolicy.
func IsRetryable(err error) bool {
	return errors.Is(err, zk.ErrConnectionClosed) ||
		errors.Is(err, zk.ErrSessionMoved) ||
		errors.Is(err, zk.ErrNoServer)
}

// callWithRetry runs fn against the client's current session until it
// succeeds, fails with a non-retryable error, or the retry policy gives up.
// Errors are returned unwrapped.
func callWithRetry[T any](ctx context.Context, client SessionClient, fn func(conn zookeeper.Conn) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.BlockUntilConnected(ctx); err != nil {
		var zero T
		return zero, err
	}

	operation := func() (T, error) {
		conn, err := client.ZooKeeper()
		if err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		result, err := fn(zookeeper.WithContext(conn, ctx))
		if err != nil && !IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newBackOff(client.RetryPolicy())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("retrying zookeeper operation", "error", err, "backoff", next)
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return result, err
}
