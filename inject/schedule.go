package inject

import "time"

// Task is a scheduled call that can be cancelled before it runs.
type Task interface {
	// Stop cancels the call. It reports false when the call already ran
	// or was already stopped.
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// TimerScheduler schedules on the runtime timer.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}
