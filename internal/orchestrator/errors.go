package orchestrator

import "errors"

// Failures surfaced to callers. Backend and transport errors are wrapped into one of
// these, so errors.Is is enough to pick the user-visible reply.
var (
	ErrService           = errors.New("completion service error")
	ErrTimeout           = errors.New("completion timed out")
	ErrConcurrentRequest = errors.New("completion already in flight for session")
)
