// Package redis implements the two external collaborators on top of a single
// Redis deployment: the connection registry (a set with cursor-paginated
// scans) and the broadcast channel (Pub/Sub). All operations go through a
// shared client instrumented with metrics and circuit breaker hooks.
package redis
