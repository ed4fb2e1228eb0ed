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
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy decides whether a failed operation is attempted again.
type RetryPolicy interface {
	// AllowRetry is called after the retryCount'th failure (starting at 0)
	// with the time elapsed since the first attempt. It returns how long to
	// sleep before the next attempt, or false to give up.
	AllowRetry(retryCount int, elapsed time.Duration) (time.Duration, bool)
}

// BackOffProvider is implemented by policies that supply their own
// backoff schedule for one retried operation.
type BackOffProvider interface {
	NewBackOff() backoff.BackOff
}

const maxExponentialRetries = 29

// ExponentialBackoffRetry retries a bounded number of times with a
// randomized sleep that grows exponentially up to MaxSleep.
type ExponentialBackoffRetry struct {
	BaseSleep  time.Duration
	MaxRetries int
	MaxSleep   time.Duration
}

// NewExponentialBackoffRetry returns a policy sleeping around baseSleep,
// doubling on each retry, for at most maxRetries retries.
func NewExponentialBackoffRetry(baseSleep time.Duration, maxRetries int) *ExponentialBackoffRetry {
	return NewBoundedExponentialBackoffRetry(baseSleep, time.Duration(1<<31-1)*time.Millisecond, maxRetries)
}

// NewBoundedExponentialBackoffRetry is NewExponentialBackoffRetry with a
// ceiling on each sleep.
func NewBoundedExponentialBackoffRetry(baseSleep, maxSleep time.Duration, maxRetries int) *ExponentialBackoffRetry {
	if maxRetries > maxExponentialRetries {
		maxRetries = maxExponentialRetries
	}
	return &ExponentialBackoffRetry{BaseSleep: baseSleep, MaxRetries: maxRetries, MaxSleep: maxSleep}
}

// AllowRetry implements RetryPolicy.
func (p *ExponentialBackoffRetry) AllowRetry(retryCount int, elapsed time.Duration) (time.Duration, bool) {
	if retryCount >= p.MaxRetries {
		return 0, false
	}
	factor := rand.IntN(1 << (retryCount + 1))
	if factor < 1 {
		factor = 1
	}
	sleep := p.BaseSleep * time.Duration(factor)
	if p.MaxSleep > 0 && sleep > p.MaxSleep {
		sleep = p.MaxSleep
	}
	return sleep, true
}

// NewBackOff implements BackOffProvider.
func (p *ExponentialBackoffRetry) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseSleep
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	if p.MaxSleep > 0 {
		b.MaxInterval = p.MaxSleep
	}
	return &limitedBackOff{delegate: b, max: p.MaxRetries}
}

// RetryNTimes retries up to N times with a fixed sleep.
type RetryNTimes struct {
	N     int
	Sleep time.Duration
}

// NewRetryNTimes returns a RetryNTimes policy.
func NewRetryNTimes(n int, sleep time.Duration) *RetryNTimes {
	return &RetryNTimes{N: n, Sleep: sleep}
}

// AllowRetry implements RetryPolicy.
func (p *RetryNTimes) AllowRetry(retryCount int, elapsed time.Duration) (time.Duration, bool) {
	if retryCount < p.N {
		return p.Sleep, true
	}
	return 0, false
}

// NewRetryOneTime returns a policy that retries once after sleep.
func NewRetryOneTime(sleep time.Duration) *RetryNTimes {
	return NewRetryNTimes(1, sleep)
}

// RetryUntilElapsed retries with a fixed sleep until MaxElapsed has passed.
type RetryUntilElapsed struct {
	MaxElapsed time.Duration
	Sleep      time.Duration
}

// NewRetryUntilElapsed returns a RetryUntilElapsed policy.
func NewRetryUntilElapsed(maxElapsed, sleep time.Duration) *RetryUntilElapsed {
	return &RetryUntilElapsed{MaxElapsed: maxElapsed, Sleep: sleep}
}

// AllowRetry implements RetryPolicy.
func (p *RetryUntilElapsed) AllowRetry(retryCount int, elapsed time.Duration) (time.Duration, bool) {
	if elapsed < p.MaxElapsed {
		return p.Sleep, true
	}
	return 0, false
}

// limitedBackOff stops a backoff schedule after max intervals.
type limitedBackOff struct {
	delegate backoff.BackOff
	max      int
	count    int
}

func (b *limitedBackOff) NextBackOff() time.Duration {
	if b.count >= b.max {
		return backoff.Stop
	}
	b.count++
	return b.delegate.NextBackOff()
}

func (b *limitedBackOff) Reset() {
	b.count = 0
	b.delegate.Reset()
}

// policyBackOff drives backoff.Retry from a RetryPolicy.
type policyBackOff struct {
	policy RetryPolicy
	count  int
	start  time.Time
}

func newBackOff(policy RetryPolicy) backoff.BackOff {
	if p, ok := policy.(BackOffProvider); ok {
		return p.NewBackOff()
	}
	return &policyBackOff{policy: policy, start: time.Now()}
}

func (b *policyBackOff) NextBackOff() time.Duration {
	sleep, ok := b.policy.AllowRetry(b.count, time.Since(b.start))
	b.count++
	if !ok {
		return backoff.Stop
	}
	return sleep
}

func (b *policyBackOff) Reset() {
	b.count = 0
	b.start = time.Now()
}
