package serial

import "testing"

func TestRingBufferEmpty(t *testing.T) {
	rb := NewRingBuffer()
	if rb.Used() != 0 {
		t.Fatalf("Used on empty: got %d, want 0", rb.Used())
	}
	if rb.Free() != bufferSize-1 {
		t.Fatalf("Free on empty: got %d, want %d", rb.Free(), bufferSize-1)
	}
	if _, ok := rb.Peek(); ok {
		t.Fatal("Peek on empty returned ok")
	}
	if _, ok := rb.Get(); ok {
		t.Fatal("Get on empty returned ok")
	}
}

func TestRingBufferPeekDoesNotConsume(t *testing.T) {
	rb := NewRingBuffer()
	rb.Put('a')
	for i := 0; i < 3; i++ {
		b, ok := rb.Peek()
		if !ok || b != 'a' {
			t.Fatalf("Peek #%d: got %q,%v", i, b, ok)
		}
	}
	if rb.Used() != 1 {
		t.Fatalf("Used after peeks: got %d, want 1", rb.Used())
	}
	if b, ok := rb.Get(); !ok || b != 'a' {
		t.Fatalf("Get: got %q,%v", b, ok)
	}
}

func TestRingBufferCapacityReservesOneSlot(t *testing.T) {
	rb := NewRingBuffer()
	for i := 0; i < int(bufferSize)-1; i++ {
		if !rb.Put(byte(i)) {
			t.Fatalf("Put #%d refused below capacity", i)
		}
	}
	if rb.Free() != 0 {
		t.Fatalf("Free at capacity: got %d, want 0", rb.Free())
	}
	if rb.Put(0xFF) {
		t.Fatal("Put succeeded on a full buffer")
	}
	// One Get frees exactly one slot.
	if _, ok := rb.Get(); !ok {
		t.Fatal("Get on full buffer failed")
	}
	if !rb.Put(0xFF) {
		t.Fatal("Put refused after a slot was freed")
	}
}

func TestRingBufferWraparoundOrder(t *testing.T) {
	rb := NewRingBuffer()
	// Cycle several times the capacity through the buffer in small bursts
	// so head and tail wrap repeatedly.
	next := byte(0)
	expect := byte(0)
	for round := 0; round < 10; round++ {
		for i := 0; i < 40; i++ {
			if !rb.Put(next) {
				t.Fatalf("Put refused with %d used", rb.Used())
			}
			next++
		}
		for i := 0; i < 40; i++ {
			b, ok := rb.Get()
			if !ok {
				t.Fatalf("Get failed with %d expected bytes left", 40-i)
			}
			if b != expect {
				t.Fatalf("out of order: got %d, want %d", b, expect)
			}
			expect++
		}
	}
	if rb.Used() != 0 {
		t.Fatalf("Used after drain: got %d, want 0", rb.Used())
	}
}

func TestRingBufferStagedWriteInvisibleUntilCommit(t *testing.T) {
	rb := NewRingBuffer()
	newHead := rb.Stage('x')
	if rb.Used() != 0 {
		t.Fatalf("staged write already visible: Used=%d", rb.Used())
	}
	if _, ok := rb.Get(); ok {
		t.Fatal("Get returned a staged, uncommitted byte")
	}
	rb.Commit(newHead)
	if b, ok := rb.Get(); !ok || b != 'x' {
		t.Fatalf("after Commit: got %q,%v", b, ok)
	}
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer()
	for i := 0; i < 10; i++ {
		rb.Put(byte(i))
	}
	rb.Clear()
	if rb.Used() != 0 {
		t.Fatalf("Used after Clear: got %d, want 0", rb.Used())
	}
	if _, ok := rb.Get(); ok {
		t.Fatal("Get returned data after Clear")
	}
}
