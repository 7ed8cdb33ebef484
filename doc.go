// Package eduAuth implements account authentication and session lifecycle:
// registration with email verification, password login with brute-force
// lockout, TOTP second factor, rotating single-use refresh tokens and
// password reset.
//
// # Architecture boundaries
//
// eduAuth is the public surface. It exposes [Engine], [Builder], [Config] and
// the request/result types. Durable account state is owned by an
// [AccountRepository]; ephemeral state (pending 2FA challenges, refresh
// tokens, limiter counters) is owned by Redis through the session package.
// The Account record never mirrors session state.
//
// # Side effects
//
// Notifications and audit entries are fire-and-observe. A failing
// [NotificationSender] or [AuditRecorder] is logged and counted but never
// unwinds the state change that preceded it. Repository, hasher, token and
// Redis failures are returned wrapped.
//
// # Concurrency
//
// Engine methods are safe for concurrent use after [Builder.Build]. Password
// hashing runs on a bounded pool. Refresh tokens are consumed atomically, so
// concurrent refreshes with one token yield a single winner. Failed-login
// counting is not serialized across concurrent attempts for the same account.
package eduAuth
