package common

import (
	"errors"
	"time"
)

// ErrGracePeriod is returned when a mutating operation runs before the
// post-unpause grace window has elapsed.
var ErrGracePeriod = errors.New("grace period active")

// GraceView exposes the unpause timestamp and configured grace window so
// the engine can reject mutating calls until the pool has settled.
type GraceView interface {
	UnpauseTime() time.Time
	GraceSeconds() uint64
}

// GuardGrace fails with ErrGracePeriod when now is still within
// GraceSeconds of the last unpause. A zero UnpauseTime means the pool has
// never been paused and the check is skipped.
func GuardGrace(g GraceView, now time.Time) error {
	if g == nil {
		return nil
	}
	unpausedAt := g.UnpauseTime()
	if unpausedAt.IsZero() {
		return nil
	}
	deadline := unpausedAt.Add(time.Duration(g.GraceSeconds()) * time.Second)
	if now.Before(deadline) {
		return ErrGracePeriod
	}
	return nil
}
