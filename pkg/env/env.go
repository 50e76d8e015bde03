// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package env provides an abstraction over process environment access so
// that callers reading configuration from the environment can be tested
// without mutating the real environment.
package env

//go:generate mockgen -destination=mocks/mock_reader.go -package=mocks -source=env.go Reader

import "os"

// Reader reads environment variables.
type Reader interface {
	Getenv(key string) string
	LookupEnv(key string) (string, bool)
}

// OSReader reads from the real process environment.
type OSReader struct{}

// Getenv returns the value of the environment variable named by key.
func (*OSReader) Getenv(key string) string {
	return os.Getenv(key)
}

// LookupEnv returns the value of the environment variable named by key and
// whether it was set.
func (*OSReader) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapReader reads from a fixed map. Useful for tests and for layering
// explicit overrides on top of the environment.
type MapReader map[string]string

// Getenv returns the value for key, or "" if absent.
func (m MapReader) Getenv(key string) string {
	return m[key]
}

// LookupEnv returns the value for key and whether it was present.
func (m MapReader) LookupEnv(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Environ flattens the map into KEY=value pairs.
func (m MapReader) Environ() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
