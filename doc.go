// Package goCred provides short-lived, single-use credential primitives for
// account security: email-verification and password-reset tokens, TOTP-based
// multi-factor authentication with backup codes, and stateless signed state
// envelopes for OAuth CSRF protection.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. There is no shared in-process state between requests beyond
// the Redis-backed stores; every operation is a short, independently
// schedulable unit of work.
//
// # Architecture boundaries
//
// goCred is the public surface. It exposes [Engine], [Builder], [Config],
// collaborator interfaces ([TokenStore], [CredentialHasher], [Notifier],
// [AccountRepository]) and value types. Shared primitives (secret generation,
// token codecs) live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Route HTTP requests, render responses, or send email. Raw tokens are
//     handed to the injected [Notifier] and returned to the caller; they are
//     never persisted or logged.
//   - Own account records. Lockout fields and password hashes are reached
//     through the injected [AccountRepository].
//   - Mandate a hashing algorithm. [CredentialHasher] is swappable; the
//     password/ subpackage offers an Argon2id default.
//
// # Atomicity contract
//
// Two store primitives carry the security invariants: issue performs
// invalidate-then-insert in one transaction so that at most one token per
// (subject, purpose, scope) is ever active, and consume performs a
// compare-and-swap on the used marker so that exactly one of any number of
// concurrent redemptions succeeds.
package goCred
