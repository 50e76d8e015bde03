// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package execctx

import "context"

// Names under which Functions exposes the accessors.
const (
	FuncUserExternalToken = "get_user_external_token"
	FuncUsername          = "get_username"
	FuncUserProvider      = "get_user_provider"
	FuncUserEmail         = "get_user_email"
	FuncUserID            = "get_user_id"
)

// Accessors exposes zero-argument readers of the current user. Each call
// consults the Scope at call time, so a function registered once keeps
// returning whoever is current when it runs.
type Accessors struct {
	scope *Scope
}

// Bind returns the accessors for the Scope carried by ctx. Without a Scope
// every accessor returns the empty string.
func Bind(ctx context.Context) Accessors {
	return Accessors{scope: ScopeFrom(ctx)}
}

func (a Accessors) user() *UserContext {
	return a.scope.Current()
}

// UserToken returns the provider access token of the current user.
func (a Accessors) UserToken() string {
	if u := a.user(); u != nil {
		return u.ExternalToken
	}
	return ""
}

// Username returns the username of the current user.
func (a Accessors) Username() string {
	if u := a.user(); u != nil {
		return u.Username
	}
	return ""
}

// UserProvider returns the provider name of the current user.
func (a Accessors) UserProvider() string {
	if u := a.user(); u != nil {
		return u.Provider
	}
	return ""
}

// UserEmail returns the email of the current user.
func (a Accessors) UserEmail() string {
	if u := a.user(); u != nil {
		return u.Email
	}
	return ""
}

// UserID returns the provider user id of the current user.
func (a Accessors) UserID() string {
	if u := a.user(); u != nil {
		return u.UserID
	}
	return ""
}

// Functions returns the accessors keyed by their registration name, for
// callers such as SQL function registries that cannot pass parameters.
func (a Accessors) Functions() map[string]func() any {
	wrap := func(f func() string) func() any {
		return func() any { return f() }
	}
	return map[string]func() any{
		FuncUserExternalToken: wrap(a.UserToken),
		FuncUsername:          wrap(a.Username),
		FuncUserProvider:      wrap(a.UserProvider),
		FuncUserEmail:         wrap(a.UserEmail),
		FuncUserID:            wrap(a.UserID),
	}
}
