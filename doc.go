// Package auth provides credential storage, JWT session issuance, HTTP
// route protection, and the password reset workflow for the trails API.
//
// Accounts:
//   - Users carry a bcrypt hash, an activation flag, and password change
//     bookkeeping. Lookups on authentication paths only ever return active
//     accounts, so a deactivated account is invisible to login, session
//     resolution, and the reset flow.
//   - Every password change stamps PasswordChangedAt slightly in the past so
//     a token minted in the same response stays valid while tokens issued
//     before the change are rejected by the session gate.
//
// Sessions:
//   - TokenService signs and validates HS256 tokens. The session gate in
//     middleware/sessionware re-resolves the account on every request and
//     compares the token's issue time against the last password change.
//   - RequireRoles restricts routes to an explicit allow set, anonymous
//     requests are always rejected.
//
// Password reset:
//   - The flow emails a random plaintext token and stores only its SHA-256
//     digest with a short expiry. Redemption matches the digest and the
//     expiry in a single predicate, changes the password, and consumes the
//     token in the same statement.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     command handlers to describe login and password events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package auth
