// serial/ringbuffer.go

package serial

import "sync/atomic"

// Buffer capacity shared by both directions. Must fit the 8-bit index
// domain (<= 256). A power of two lets the wraparound use masking; any other
// value falls back to a conditional subtract.
const bufferSize = 64

// RingBuffer is a fixed-capacity circular byte queue shared between
// foreground code and an interrupt handler. One slot is reserved so that
// head == tail always means empty: Put refuses to fill the last slot rather
// than letting a full buffer alias an empty one.
//
// head is advanced only by the producer and tail only by the consumer. Both
// are load/store atomic, so the non-owning side may read them without a
// critical section. Multi-step sequences that the interrupt must not split
// (Stage/Commit fused with interrupt arming) are the caller's job.
type RingBuffer struct {
	buf  [bufferSize]byte
	head atomic.Uint32 // index of the next slot to write (producer-owned)
	tail atomic.Uint32 // index of the next slot to read (consumer-owned)
}

// NewRingBuffer returns a new empty ring buffer.
func NewRingBuffer() *RingBuffer {
	return &RingBuffer{}
}

// Size returns the total capacity in bytes. One slot is reserved, so at most
// Size()-1 bytes can be queued at a time.
func (rb *RingBuffer) Size() uint8 {
	return bufferSize
}

// nextIndex returns i advanced by one slot with wraparound.
func nextIndex(i uint8) uint8 {
	if bufferSize&(bufferSize-1) == 0 {
		return (i + 1) & (bufferSize - 1)
	}
	i++
	if i >= bufferSize {
		i = 0
	}
	return i
}

// Used returns the number of bytes currently queued.
func (rb *RingBuffer) Used() uint8 {
	head := uint8(rb.head.Load())
	tail := uint8(rb.tail.Load())
	if bufferSize&(bufferSize-1) == 0 {
		return (head - tail) & (bufferSize - 1)
	}
	if tail > head {
		return bufferSize + head - tail
	}
	return head - tail
}

// Free returns how many bytes can be queued without waiting.
func (rb *RingBuffer) Free() uint8 {
	return bufferSize - 1 - rb.Used()
}

// Peek returns the next byte without consuming it. It returns false when the
// buffer is empty.
func (rb *RingBuffer) Peek() (byte, bool) {
	tail := uint8(rb.tail.Load())
	if uint8(rb.head.Load()) == tail {
		return 0, false
	}
	return rb.buf[tail], true
}

// Get returns and consumes the next byte. It returns false when the buffer
// is empty.
func (rb *RingBuffer) Get() (byte, bool) {
	tail := uint8(rb.tail.Load())
	if uint8(rb.head.Load()) == tail {
		return 0, false
	}
	v := rb.buf[tail]                      // 1) read current element
	rb.tail.Store(uint32(nextIndex(tail))) // 2) publish consumption
	return v, true
}

// Put stores one byte. It returns false when the buffer is full; it never
// overwrites queued data.
func (rb *RingBuffer) Put(val byte) bool {
	newHead := rb.Stage(val)
	if rb.FullAt(newHead) {
		return false
	}
	rb.Commit(newHead)
	return true
}

// Stage writes val into the slot at head without publishing it and returns
// the head index Commit must publish to make the byte visible to the
// consumer. The transmit path uses the split form so the publish can be
// fused with interrupt arming in one critical section.
func (rb *RingBuffer) Stage(val byte) uint8 {
	head := uint8(rb.head.Load())
	rb.buf[head] = val // 1) write data
	return nextIndex(head)
}

// FullAt reports whether publishing newHead would make the buffer look
// empty, i.e. whether the buffer is full at this instant. Producers poll it
// while waiting for the consumer to free a slot.
func (rb *RingBuffer) FullAt(newHead uint8) bool {
	return newHead == uint8(rb.tail.Load())
}

// Commit publishes a staged write.
func (rb *RingBuffer) Commit(newHead uint8) {
	rb.head.Store(uint32(newHead)) // 2) publish
}

// Clear resets the head and tail indices to zero, discarding queued data.
func (rb *RingBuffer) Clear() {
	rb.head.Store(0)
	rb.tail.Store(0)
}
