package probe

import "time"

// Precision tags how a latency was measured so downstream statistics can
// round consistently instead of guessing.
type Precision string

const (
	PrecisionHigh   Precision = "high"   // sub-millisecond, monotonic
	PrecisionCoarse Precision = "coarse" // whole milliseconds
)

// TimingSource measures the elapsed time of one probe attempt.
// Start returns a stop function reporting elapsed milliseconds.
type TimingSource interface {
	Start() func() float64
	Precision() Precision
}

// MonotonicTiming measures with the runtime's monotonic clock at
// sub-millisecond resolution.
type MonotonicTiming struct{}

func (MonotonicTiming) Start() func() float64 {
	t0 := time.Now()
	return func() float64 {
		return float64(time.Since(t0).Nanoseconds()) / 1e6
	}
}

func (MonotonicTiming) Precision() Precision { return PrecisionHigh }

// CoarseTiming truncates to whole milliseconds. It exists for
// environments where only coarse timing is wanted and keeps the
// precision tag honest on results measured this way.
type CoarseTiming struct{}

func (CoarseTiming) Start() func() float64 {
	t0 := time.Now()
	return func() float64 {
		return float64(time.Since(t0).Milliseconds())
	}
}

func (CoarseTiming) Precision() Precision { return PrecisionCoarse }
