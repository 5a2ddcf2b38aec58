package vfsdb

import (
	"time"
)

// Metrics collects DB statistics.
type Metrics interface {
	AddMethodDuration(method string, d time.Duration)
	SetRecordsAllocated(n int32)
	IncCorruptionErrors()
}

type noopMetrics struct{}

func (noopMetrics) AddMethodDuration(string, time.Duration) {}
func (noopMetrics) SetRecordsAllocated(int32)               {}
func (noopMetrics) IncCorruptionErrors()                    {}

func elapsed(method string, addFunc func(string, time.Duration)) func() {
	t := time.Now()

	return func() {
		addFunc(method, time.Since(t))
	}
}
