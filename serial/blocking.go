// serial/blocking.go

package serial

import (
	"context"
	"time"
)

// Readable returns a coalesced notification for RX readiness. The receive
// interrupt sends on this channel after enqueueing one or more bytes. The
// channel is level-coalesced; callers must re-check state after waking.
func (p *Port) Readable() <-chan struct{} { return p.notify }

// Writable returns a coalesced notification for TX progress. The transmit
// interrupt sends on this channel each time it moves a byte to the
// hardware. The channel is level-coalesced; callers must re-check state
// after waking.
func (p *Port) Writable() <-chan struct{} { return p.txNotify }

// WaitReadable blocks until received data is available or ctx is done.
func (p *Port) WaitReadable(ctx context.Context) error {
	for {
		if p.Available() > 0 {
			return nil
		}
		select {
		case <-p.notify:
			// Re-check; a coalesced notify can wake spuriously.
			if p.Available() == 0 {
				p.stats.spuriousWakes.Add(1)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadBlocking blocks until at least one byte is available, then reads up
// to len(b) bytes.
func (p *Port) ReadBlocking(ctx context.Context, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		if n, _ := p.Read(b); n > 0 {
			return n, nil
		}
		if err := p.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadFullBlocking blocks until exactly len(b) bytes have been read.
func (p *Port) ReadFullBlocking(ctx context.Context, b []byte) (int, error) {
	read := 0
	for read < len(b) {
		if n, _ := p.Read(b[read:]); n > 0 {
			read += n
			continue
		}
		if err := p.WaitReadable(ctx); err != nil {
			return read, err
		}
	}
	return read, nil
}

// ReadByteBlocking blocks for a single byte or until ctx is done.
func (p *Port) ReadByteBlocking(ctx context.Context) (byte, error) {
	for {
		if b, err := p.ReadByte(); err == nil {
			return b, nil
		}
		if err := p.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadWithTimeout reads like ReadBlocking with a deadline of d.
func (p *Port) ReadWithTimeout(b []byte, d time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return p.ReadBlocking(ctx, b)
}
