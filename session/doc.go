// Package session provides the Redis-backed Session Store: pending
// second-factor markers, rotating refresh tokens and fixed-window limiters.
//
// # Key layout
//
//	session:<accountID>          pending-2FA marker (JSON), short TTL
//	refresh_token:<token>        decimal account id, refresh TTL
//	refresh_tokens:<accountID>   set of the account's refresh tokens
//	rl:<scope>:<key>             limiter counter
//
// The first two shapes are shared with other services reading the same
// Redis and must stay stable.
//
// # Atomicity
//
// Refresh consumption, owner-checked deletion and bulk revocation run as Lua
// scripts, so each is a single step from Redis' point of view. A refresh
// token can be consumed at most once even under concurrent callers.
//
// # Architecture boundaries
//
// This package owns Redis operations only. It does NOT issue tokens, check
// passwords or decide policy; those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import eduAuth, jwt or password (no upward imports).
//   - Store account secrets.
package session
