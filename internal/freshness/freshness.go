// Package freshness decides whether a recorded geolocation is recent enough
// for a sale to be submitted.
//
// Both processors consult the same Guard so a record is never accepted by one
// side and rejected by the other.
package freshness

import "time"

// DefaultWindow is the maximum age of a location reading.
const DefaultWindow = 90 * time.Second

// Guard enforces the location freshness window.
type Guard struct {
	Window time.Duration
	Now    func() time.Time
}

// New returns a guard for window; a non-positive window selects DefaultWindow.
func New(window time.Duration) Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return Guard{Window: window, Now: time.Now}
}

// Fresh reports whether a submission may be delivered. Admin submissions
// always pass. Otherwise a missing timestamp is stale and a reading is fresh
// only while its age is strictly below the window.
func (g Guard) Fresh(isAdmin bool, timestampMillis *int64) bool {
	if isAdmin {
		return true
	}
	if timestampMillis == nil {
		return false
	}
	return g.now().UnixMilli()-*timestampMillis < g.window().Milliseconds()
}

// Age returns how old the reading is. The second result is false when no
// timestamp was recorded.
func (g Guard) Age(timestampMillis *int64) (time.Duration, bool) {
	if timestampMillis == nil {
		return 0, false
	}
	return time.Duration(g.now().UnixMilli()-*timestampMillis) * time.Millisecond, true
}

func (g Guard) window() time.Duration {
	if g.Window <= 0 {
		return DefaultWindow
	}
	return g.Window
}

func (g Guard) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}
