package domain

import "errors"

// ErrConnectionGone is the canonical signal that a connection's endpoint has
// been torn down. The fanout engine evicts the registration when a push
// reports it; all other push errors are treated as transient.
var ErrConnectionGone = errors.New("connection gone")
