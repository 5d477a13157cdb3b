package service

import "time"

// Clock abstracts wall-clock time so staleness logic is deterministic in
// tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func NewRealClock() Clock { return realClock{} }
