package main

import "time"

// Deferred is a destructive action waiting for its commit deadline.
// Re-arming moves the deadline; there is never more than one pending commit.
type Deferred struct {
	Pending  bool
	Deadline time.Time
}

func (d *Deferred) Arm(now time.Time, delay time.Duration) {
	d.Pending = true
	d.Deadline = now.Add(delay)
}

// Fire reports whether the action is due at now and, if so, disarms it.
func (d *Deferred) Fire(now time.Time) bool {
	if !d.Pending || now.Before(d.Deadline) {
		return false
	}
	d.Pending = false
	d.Deadline = time.Time{}
	return true
}

func (d *Deferred) Cancel() {
	d.Pending = false
	d.Deadline = time.Time{}
}
