// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import "time"

// DefaultCleanupInterval is how often the memory store sweeps expired records.
const DefaultCleanupInterval = 5 * time.Minute

// Option configures a token store.
type Option func(*storeOptions)

type storeOptions struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

func newStoreOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now, cleanupInterval: DefaultCleanupInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		o.now = now
	}
}

// WithCleanupInterval sets the background sweep interval of the memory
// store. Zero or negative disables the sweep.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *storeOptions) {
		o.cleanupInterval = interval
	}
}
