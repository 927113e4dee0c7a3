// feserial/ringbuffer.go

package feserial

import (
	"context"
	"fmt"
	"sync"
)

// DefaultRxCapacity is the receive buffer size used when none is configured.
const DefaultRxCapacity = 16

// RingBuffer is the bounded receive queue shared by the interrupt handler
// (sole producer) and any number of blocking readers.
//
// When the buffer is full, Push overwrites the oldest unread byte, counts an
// overrun and reports ErrOverflow. The used count keeps "full" distinct from
// "empty", so a reader never mistakes a wrapped buffer for an empty one.
//
// Every critical section is a handful of array operations and never allocates.
type RingBuffer struct {
	mu       sync.Mutex
	storage  []byte
	rd, wr   int
	used     int
	overruns uint32

	notify chan struct{} // coalesced not-empty signal
}

// NewRingBuffer returns an empty buffer holding up to capacity bytes.
// A capacity below 1 selects DefaultRxCapacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = DefaultRxCapacity
	}
	return &RingBuffer{
		storage: make([]byte, capacity),
		notify:  make(chan struct{}, 1),
	}
}

// Size returns the capacity in bytes.
func (rb *RingBuffer) Size() int { return len(rb.storage) }

// Used returns how many unread bytes are buffered.
func (rb *RingBuffer) Used() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.used
}

// Overruns returns how many bytes were lost to overwrite since the last Clear.
func (rb *RingBuffer) Overruns() uint32 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.overruns
}

// Push stores b and wakes one waiting reader. It never blocks and is safe to
// call from the interrupt handler. If the buffer was full the oldest byte is
// discarded and ErrOverflow is returned; b is stored either way.
func (rb *RingBuffer) Push(b byte) error {
	var err error

	rb.mu.Lock()
	if rb.used == len(rb.storage) {
		rb.rd = rb.advance(rb.rd)
		rb.used--
		rb.overruns++
		err = ErrOverflow
	}
	rb.storage[rb.wr] = b
	rb.wr = rb.advance(rb.wr)
	rb.used++
	rb.mu.Unlock()

	rb.signal()
	return err
}

// TryPop removes and returns the oldest byte without blocking.
func (rb *RingBuffer) TryPop() (byte, bool) {
	rb.mu.Lock()
	if rb.used == 0 {
		rb.mu.Unlock()
		return 0, false
	}
	b := rb.storage[rb.rd]
	rb.rd = rb.advance(rb.rd)
	rb.used--
	more := rb.used > 0
	rb.mu.Unlock()

	// The wake-up is coalesced: if bytes remain, hand it on to the next
	// waiter so a burst of pushes cannot strand one.
	if more {
		rb.signal()
	}
	return b, true
}

// Pop blocks until a byte is available or ctx is done. On cancellation it
// returns an error wrapping ErrInterrupted and the cancellation cause, and
// the buffer is left untouched.
func (rb *RingBuffer) Pop(ctx context.Context) (byte, error) {
	for {
		if b, ok := rb.TryPop(); ok {
			return b, nil
		}
		select {
		case <-rb.notify:
			// coalesced wake-up; re-check
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		}
	}
}

// Clear discards all buffered bytes and resets the overrun count.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	rb.rd, rb.wr, rb.used, rb.overruns = 0, 0, 0, 0
	rb.mu.Unlock()
}

func (rb *RingBuffer) advance(i int) int {
	i++
	if i == len(rb.storage) {
		i = 0
	}
	return i
}

func (rb *RingBuffer) signal() {
	select {
	case rb.notify <- struct{}{}:
	default:
	}
}
