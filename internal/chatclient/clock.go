package chatclient

import "time"

// Clock abstracts time so every timer-owning state machine in this package
// (typing expiry, send timeouts, reconnect backoff) is testable with a fake.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the stoppable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return realClock{} }
