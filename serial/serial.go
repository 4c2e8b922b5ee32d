// serial/serial.go

// Package serial implements a buffered, interrupt-driven driver for an
// AVR-style USART. Received bytes are queued into a software ring by the
// receive interrupt; transmitted bytes are queued by the foreground and
// drained by the data-register-empty interrupt, with a direct-to-register
// fast path when both the ring and the hardware are idle. Write blocks until
// the byte is accepted by the driver; Flush provides an explicit
// "on the wire" completion.
//
// The driver is generic over the Hardware register-access interface: the
// same state machines run against the simulated register file (Sim) on a
// host and against real USART registers on target builds.
package serial

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrBufferEmpty is returned by Peek and ReadByte when no received data is
// queued.
var ErrBufferEmpty = errors.New("serial: buffer empty")

// Port is one buffered serial port.
//
// Concurrency model: the interrupt bodies (ReceiveInterrupt and
// TransmitInterrupt) may preempt or run in parallel with the foreground
// methods. The RX ring's head and the TX ring's tail belong to the
// interrupts; the opposite indices belong to the foreground. Index crossings
// go through the ring's atomics, and the two multi-step hazards of the TX
// path (data-register write + transmit-complete clear, head publish +
// interrupt arming) run inside Hardware.Atomic critical sections.
type Port struct {
	hw Hardware

	rx *RingBuffer // filled by the receive interrupt, drained by the foreground
	tx *RingBuffer // filled by the foreground, drained by the transmit interrupt

	// written records whether any byte has been transmitted since Begin.
	// The transmit-complete flag cannot be forced into a known state at
	// initialisation, so Flush's completion check is meaningless until at
	// least one byte has actually gone out.
	written atomic.Bool

	notify   chan struct{} // coalesced RX readiness notifications
	txNotify chan struct{} // coalesced TX progress/space notifications

	onReceive func() // optional RunEvents handler

	stats counters
}

// NewPort returns a Port driving the given hardware. The port is inert
// until Begin.
func NewPort(hw Hardware) *Port {
	return &Port{
		hw:       hw,
		rx:       NewRingBuffer(),
		tx:       NewRingBuffer(),
		notify:   make(chan struct{}, 1),
		txNotify: make(chan struct{}, 1),
	}
}

// Begin programs the baud rate and frame format, resets both buffers and
// enables the receiver, transmitter and receive interrupt. A zero baud rate
// defaults to 115200.
//
// The 2x-oversampled mode is tried first; rates whose divisor would
// overflow the 12-bit field fall back to 1x mode, as does 57600 on a 16 MHz
// clock for compatibility with the bootloaders shipped on old boards.
func (p *Port) Begin(baud uint32, cfg FrameConfig) error {
	if baud == 0 {
		baud = 115200
	}
	clk := p.hw.ClockFrequency()
	if baud > clk/8 {
		return errors.New("serial: baud rate not achievable at this clock")
	}

	divisor := (clk/4/baud - 1) / 2
	doubleSpeed := true
	if (clk == 16000000 && baud == 57600) || divisor > 4095 {
		divisor = (clk/8/baud - 1) / 2
		doubleSpeed = false
	}
	p.hw.SetBaudDivisor(uint16(divisor), doubleSpeed)
	p.hw.SetFrameFormat(cfg)

	p.written.Store(false)
	p.rx.Clear()
	p.tx.Clear()

	p.hw.EnableReceiver(true)
	p.hw.EnableTransmitter(true)
	p.hw.EnableRxInterrupt(true)
	p.hw.EnableTxInterrupt(false)
	return nil
}

// End drains pending output, then disables the receiver, transmitter and
// both interrupt sources. Buffered unread input is discarded.
func (p *Port) End() {
	_ = p.Flush()

	p.hw.EnableReceiver(false)
	p.hw.EnableTransmitter(false)
	p.hw.EnableRxInterrupt(false)
	p.hw.EnableTxInterrupt(false)

	p.hw.Atomic(func() {
		p.rx.Clear()
	})
}

// Available returns the number of received bytes queued for reading.
func (p *Port) Available() int {
	return int(p.rx.Used())
}

// AvailableForWrite returns the number of bytes that can be written without
// waiting.
func (p *Port) AvailableForWrite() int {
	return int(p.tx.Free())
}

// Peek returns the next received byte without consuming it. If no data is
// queued it returns ErrBufferEmpty.
func (p *Port) Peek() (byte, error) {
	b, ok := p.rx.Peek()
	if !ok {
		return 0, ErrBufferEmpty
	}
	return b, nil
}

// ReadByte reads a single byte from the receive buffer. If no data is
// queued it returns ErrBufferEmpty.
func (p *Port) ReadByte() (byte, error) {
	b, ok := p.rx.Get()
	if !ok {
		return 0, ErrBufferEmpty
	}
	return b, nil
}

// Read returns immediately with up to len(b) buffered bytes. It never
// blocks and never returns an error; n == 0 means "no data now".
func (p *Port) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		c, ok := p.rx.Get()
		if !ok {
			break
		}
		b[n] = c
		n++
	}
	return n, nil
}

// WriteByte queues one byte for transmission. It blocks while the transmit
// buffer is full and always eventually succeeds; it does not wait for the
// byte to reach the wire (use Flush for that).
//
// When both the transmit ring and the data register are empty, the byte is
// written straight to the hardware, bypassing the ring. At high bitrates
// the per-byte interrupt overhead otherwise dominates the effective data
// rate.
func (p *Port) WriteByte(c byte) error {
	p.written.Store(true)

	// The fast-path test and the register write form one critical section:
	// an interrupt delivered between them can move the ring's last byte
	// into the data register, and a write committed on the stale test
	// would overwrite it. Within the section the data register write comes
	// first: if transmit-complete were cleared before the write, the
	// previous byte could finish in between and set the flag with this
	// byte still in flight, letting Flush return too soon.
	fast := false
	p.hw.Atomic(func() {
		if p.tx.Used() == 0 && p.hw.DataRegisterEmpty() {
			p.hw.WriteData(c)
			p.hw.ClearTxComplete()
			fast = true
		}
	})
	if fast {
		return nil
	}

	newHead := p.tx.Stage(c)
	for p.tx.FullAt(newHead) {
		if !p.hw.InterruptsEnabled() && p.hw.DataRegisterEmpty() {
			// The transmit interrupt can never fire. Poll the data
			// register and drain one byte in its place, indivisibly, as
			// the interrupt itself would run.
			p.hw.Atomic(p.TransmitInterrupt)
			continue
		}
		// The interrupt (or the manual drain above) frees a slot; FullAt
		// re-reads the tail each pass.
		runtime.Gosched()
	}

	// Publishing the head and arming the interrupt must be indivisible: if
	// the interrupt runs between the two it can observe a stale empty ring,
	// disarm itself, and the byte just queued is never sent -- or, armed
	// against a stale head, retransmit.
	p.hw.Atomic(func() {
		p.tx.Commit(newHead)
		p.hw.EnableTxInterrupt(true)
	})
	return nil
}

// Write queues all of b, blocking as needed. It implements io.Writer and
// always returns len(b), nil.
func (p *Port) Write(b []byte) (int, error) {
	for i, c := range b {
		if err := p.WriteByte(c); err != nil {
			return i, err
		}
	}
	return len(b), nil
}

// Flush blocks until the transmit buffer is empty and the hardware reports
// transmit-complete: every queued byte has physically left the port.
func (p *Port) Flush() error {
	// Nothing was ever written: transmit-complete has no defined reset
	// state, so waiting on it could hang a port that never transmitted.
	if !p.written.Load() {
		return nil
	}

	for p.hw.TxInterruptEnabled() || !p.hw.TxComplete() {
		if !p.hw.InterruptsEnabled() && p.hw.TxInterruptEnabled() &&
			p.hw.DataRegisterEmpty() {
			// Interrupts are globally masked while the transmit interrupt
			// is armed: the real handler can never run and waiting would
			// deadlock. Poll the data register and stand in for it,
			// indivisibly, as the interrupt itself would run.
			p.hw.Atomic(p.TransmitInterrupt)
			continue
		}
		runtime.Gosched()
	}
	// Nothing is queued any more (the transmit interrupt disarmed itself)
	// and the hardware finished transmission.
	return nil
}

// TransmitInterrupt is the data-register-empty interrupt body: move one byte
// from the transmit ring to the hardware and disarm the interrupt once the
// ring is empty. Platform wiring (or the simulator) invokes it whenever the
// interrupt fires; Flush and WriteByte also call it directly when interrupts
// are globally masked and they must drain in its place.
func (p *Port) TransmitInterrupt() {
	p.stats.txInterrupts.Add(1)

	c, ok := p.tx.Get()
	if !ok {
		// Nothing queued: stop the interrupt from firing again.
		p.hw.EnableTxInterrupt(false)
		return
	}

	p.hw.WriteData(c)
	// Keep Flush waiting until this byte is actually out.
	p.hw.ClearTxComplete()

	if p.tx.Used() == 0 {
		// Ring empty: no more data, no reason to keep firing.
		p.hw.EnableTxInterrupt(false)
	}
	p.notifyTx()
}

// ReceiveInterrupt is the receive-complete interrupt body: push the byte in
// the receive data register into the software ring. Bytes that arrived with
// a parity error are read and discarded. A full ring drops the byte, since
// receive has no way to push back on the wire.
func (p *Port) ReceiveInterrupt() {
	p.stats.rxInterrupts.Add(1)

	if p.hw.ParityError() {
		_ = p.hw.ReadData()
		p.stats.parityErrors.Add(1)
		return
	}
	if p.rx.Put(p.hw.ReadData()) {
		p.stats.noteRxHighWater(uint32(p.rx.Used()))
	} else {
		p.stats.ringDrops.Add(1)
	}
	p.notifyRx()
}

// notifyRx coalesces a Readable wake-up.
func (p *Port) notifyRx() {
	select {
	case p.notify <- struct{}{}:
		p.stats.notifySent.Add(1)
	default:
		p.stats.notifyDropped.Add(1)
	}
}

// notifyTx coalesces a Writable wake-up.
func (p *Port) notifyTx() {
	select {
	case p.txNotify <- struct{}{}:
		p.stats.notifySent.Add(1)
	default:
		p.stats.notifyDropped.Add(1)
	}
}
