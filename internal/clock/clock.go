package clock

import "time"

// Clock is the single source of truth for "now". All duration math in the
// exam core goes through it; client-supplied timestamps are never trusted.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by the server wall clock.
func System() Clock { return systemClock{} }

// Fixed returns a Clock frozen at t. Test use only.
func Fixed(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }
