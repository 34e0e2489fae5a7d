package tracing

import (
	"sync/atomic"
	"time"
)

type fixedClock struct{}

func (fixedClock) FrameCount() uint64 { return 0 }

func (fixedClock) Now() time.Duration { return 0 }

func profilingOn() *atomic.Bool {
	b := new(atomic.Bool)
	b.Store(true)

	return b
}
