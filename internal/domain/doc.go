// Package domain holds the core contracts shared across pulsebridge:
// the connection registry, the per-connection push capability, and the
// broadcast channel publisher. Implementations live in adapter packages;
// the fanout engine and HTTP handlers depend only on these interfaces.
package domain
