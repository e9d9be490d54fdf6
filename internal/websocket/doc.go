// Package websocket is the in-process push transport: it owns the live
// WebSocket connections and exposes the push-to-connection capability the
// fanout engine delivers through. Membership here is local liveness state;
// the durable connection registry is reconciled separately by fanout.
package websocket
