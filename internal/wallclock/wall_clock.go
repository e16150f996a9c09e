// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"time"
)

type (
	// WallClock abstracts the subset of package time used by the sampling
	// loop and the sensor transport.
	WallClock interface {
		After(d time.Duration) <-chan time.Time
		NewTimer(d time.Duration) Timer
		Now() time.Time
	}

	// Timer abstracts the functionality of time.Timer.
	Timer interface {
		C() <-chan time.Time
		Reset(d time.Duration) bool
		Stop() bool
	}

	wallClock struct{}

	timer struct {
		*time.Timer
	}
)

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTimer indirects time.NewTimer.
func (wallClock) NewTimer(d time.Duration) Timer {
	return timer{Timer: time.NewTimer(d)}
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// C indirects time.Timer.C.
func (t timer) C() <-chan time.Time {
	return t.Timer.C
}

// Sleep blocks for d on the current Instance. It returns false if the context
// is done or wake is closed before the duration elapses.
func Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-wake:
			return false
		default:
			return true
		}
	}

	t := Instance.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C():
		return true
	case <-ctx.Done():
		return false
	case <-wake:
		return false
	}
}

// Instance is a WallClock singleton used for indirect time-based references to
// package time. Test code can set the instance to interpose on functions and
// control apparent time.
var Instance WallClock = wallClock{}
