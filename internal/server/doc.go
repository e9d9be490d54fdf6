// Package server is the HTTP edge: webhook ingestion, connection lifecycle,
// broadcast triggering, the WebSocket upgrade path, and the observability
// endpoints. Handlers translate transport concerns into calls on the domain
// collaborators and never reach into Redis or the hub internals directly.
package server
