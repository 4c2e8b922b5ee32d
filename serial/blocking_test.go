package serial

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReadByteBlockingUnblocksOnReceive(t *testing.T) {
	p, sim := newTestPort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	var got byte
	var err error
	go func() {
		defer close(done)
		got, err = p.ReadByteBlocking(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	sim.Push('Z')

	waitDone(t, done, 300*time.Millisecond, "ReadByteBlocking")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 'Z' {
		t.Fatalf("got %q, want %q", got, 'Z')
	}
}

func TestReadBlockingReadsSomeBytes(t *testing.T) {
	p, sim := newTestPort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()

	buf := make([]byte, 8)
	done := make(chan struct{})
	var n int
	var err error
	go func() {
		defer close(done)
		n, err = p.ReadBlocking(ctx, buf)
	}()

	time.Sleep(10 * time.Millisecond)
	sim.Push('x')
	sim.Push('y')
	sim.Push('z')

	waitDone(t, done, 400*time.Millisecond, "ReadBlocking")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n <= 0 || string(buf[:n]) != "xyz"[:n] {
		t.Fatalf("unexpected data: n=%d data=%q", n, string(buf[:n]))
	}
}

func TestReadFullBlockingReadsExactLen(t *testing.T) {
	p, sim := newTestPort(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	want := []byte("HELLO")
	got := make([]byte, len(want))
	done := make(chan struct{})
	var n int
	var err error
	go func() {
		defer close(done)
		n, err = p.ReadFullBlocking(ctx, got)
	}()

	time.Sleep(10 * time.Millisecond)
	for i := range want {
		sim.Push(want[i])
		time.Sleep(5 * time.Millisecond)
	}

	waitDone(t, done, 600*time.Millisecond, "ReadFullBlocking")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(want) || string(got) != string(want) {
		t.Fatalf("got %q (n=%d), want %q", string(got), n, string(want))
	}
}

func TestWaitReadableHonoursContext(t *testing.T) {
	p, _ := newTestPort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.WaitReadable(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want DeadlineExceeded", err)
	}
}

func TestReadWithTimeoutExpires(t *testing.T) {
	p, _ := newTestPort(t)
	start := time.Now()
	n, err := p.ReadWithTimeout(make([]byte, 4), 50*time.Millisecond)
	if n != 0 || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("n=%d err=%v, want 0, DeadlineExceeded", n, err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("timeout read overstayed its deadline")
	}
}

func TestNonBlockingReadAfterSpuriousNotifies(t *testing.T) {
	p, _ := newTestPort(t)
	p.notifyRx()
	p.notifyRx()
	p.notifyRx() // no data behind any of these
	if n, err := p.Read(make([]byte, 4)); err != nil || n != 0 {
		t.Fatalf("Read on empty after notifies: n=%d err=%v", n, err)
	}
}

func TestWritableSignalsOnDrain(t *testing.T) {
	p, sim := newTestPort(t)
	p.WriteByte('1')
	p.WriteByte('2')
	p.WriteByte('3') // buffered; the interrupt will move it and notify
	sim.ShiftOut()

	select {
	case <-p.Writable():
	default:
		t.Fatal("no Writable notification after the interrupt drained a byte")
	}
}
