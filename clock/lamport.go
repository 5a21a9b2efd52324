package clock

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// ErrExhausted is returned by Increment once the counter has reached
// math.MaxUint64 and no unused value is left to hand out.
var ErrExhausted = errors.New("lamport clock exhausted")

// LamportClock is a logical clock shared by every goroutine of a node.
// It mints message ids for outbound messages and is pushed forward by the
// ids observed on inbound ones.
type LamportClock struct {
	counter atomic.Uint64
}

// NewLamportClock creates a clock starting at zero
func NewLamportClock() *LamportClock {
	return &LamportClock{}
}

// Time returns the current counter value
func (c *LamportClock) Time() uint64 {
	return c.counter.Load()
}

// Increment advances the clock by one and returns the value it held before
// the increment. The returned value is reserved for the caller. At
// math.MaxUint64 the clock stays put and ErrExhausted is returned.
func (c *LamportClock) Increment() (uint64, error) {
	for {
		cur := c.counter.Load()
		if cur == math.MaxUint64 {
			return 0, ErrExhausted
		}
		if c.counter.CompareAndSwap(cur, cur+1) {
			return cur, nil
		}
	}
}

// Reconcile moves the clock to max(current, observed+1) so the next
// Increment is strictly after observed. The clock never moves backward.
func (c *LamportClock) Reconcile(observed uint64) {
	next := observed + 1
	if observed == math.MaxUint64 {
		next = math.MaxUint64
	}

	for {
		cur := c.counter.Load()
		if cur >= next {
			return
		}
		if c.counter.CompareAndSwap(cur, next) {
			return
		}
	}
}

// String returns a string representation of the clock
func (c *LamportClock) String() string {
	return fmt.Sprintf("lamport(%d)", c.Time())
}
