package auth

import "time"

// Stamp normalizes instants to UTC with microsecond precision so that they
// survive a round trip through any of the supported stores unchanged.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func stamp(t time.Time) time.Time {
	return Stamp(t)
}

// nextStamp returns now, or one microsecond past prev when the clock has
// not moved forward.
func nextStamp(prev, now time.Time) time.Time {
	now = stamp(now)
	if !now.After(prev) {
		return stamp(prev).Add(time.Microsecond)
	}
	return now
}

// NextStamp is nextStamp for stores living outside this package.
func NextStamp(prev, now time.Time) time.Time {
	return nextStamp(prev, now)
}
