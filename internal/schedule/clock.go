// Package schedule runs recurring jobs on robfig/cron schedules with an
// injectable clock and a persisted run history.
package schedule

import "time"

// Clock is the time source a Runner waits on. Tests swap in a manual clock
// to drive iterations without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
