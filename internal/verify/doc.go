// Package verify authenticates inbound provider webhooks.
//
// Exactly one trust scheme is active per process, selected once at startup
// from configuration precedence (timestamped-HMAC over generic-HMAC over
// disabled) — never by inspecting the payload. Verification is a pure
// function of (scheme, raw body, headers); all digest comparisons are
// constant-time.
package verify
