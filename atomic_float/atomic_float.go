package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 encapsulates a float64 for non-locking atomic operations.
// The value is stored as its IEEE-754 bits, so every operation is a load or a
// compare-and-swap on a uint64.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 encapsulates a float64 for atomic operations.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead atomically reads the float64.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicSet unconditionally sets the float64.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicMax raises the float64 to @candidate if @candidate is larger, retrying while
// other writers race it, and returns the resulting maximum. A NaN candidate always
// wins and sticks, so that a diverging sweep cannot be masked by a finite one.
func (af *AtomicFloat64) AtomicMax(candidate float64) float64 {
	for {
		oldBits := af.bits.Load()
		old := math.Float64frombits(oldBits)
		if math.IsNaN(old) || (!math.IsNaN(candidate) && candidate <= old) {
			return old
		}
		if af.bits.CompareAndSwap(oldBits, math.Float64bits(candidate)) {
			return candidate
		}
	}
}
