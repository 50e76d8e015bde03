// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package provider contains the Identity Provider adapters.

Every adapter implements Adapter: it builds authorize URLs, exchanges
authorization codes, refreshes tokens, fetches a normalized UserInfo and
revokes tokens. Adapters hold no per-user state and never touch storage.

Supported providers:

  - github: OAuth 2.0 apps (no refresh, PKCE ignored)
  - google: Google Identity with offline access
  - keycloak: realm-scoped OpenID Connect endpoints
  - atlassian: Atlassian Cloud 3LO
  - salesforce: Salesforce connected apps
  - oidc: any OpenID Connect provider resolved through discovery
  - dummy: an in-memory adapter for tests, with no network I/O

Failures are reported as *ProviderError. Callers use Transient to decide
whether a retry could help, and HTTPStatus to distinguish a revoked token
(401) from an unreachable provider (503).

Adapters are built once by NewAdapter from a Config and are immutable. A
configuration reload replaces the adapter rather than mutating it.
*/
package provider
