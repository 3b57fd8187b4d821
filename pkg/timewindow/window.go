// Package timewindow models half-open time intervals used for shift scheduling.
package timewindow

import "time"

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// New builds a window from its bounds.
func New(start, end time.Time) Window {
	return Window{Start: start, End: end}
}

// Valid reports whether the window has a positive duration.
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

// Duration returns the window length, or zero for inverted windows.
func (w Window) Duration() time.Duration {
	if !w.Valid() {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Overlaps reports whether w and other share any instant. Windows that only
// touch at a boundary (w.End == other.Start) do not overlap. Instants are
// compared as absolute times, so differing locations are irrelevant.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && w.End.After(other.Start)
}

// Contains reports whether t lies within [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Intersect returns the shared part of both windows and whether it is non-empty.
func (w Window) Intersect(other Window) (Window, bool) {
	if !w.Overlaps(other) {
		return Window{}, false
	}
	start := w.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := w.End
	if other.End.Before(end) {
		end = other.End
	}
	return Window{Start: start, End: end}, true
}
