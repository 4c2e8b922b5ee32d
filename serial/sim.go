// serial/sim.go

package serial

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Sim is a software register file standing in for a USART. It implements
// Hardware and is what the tests and the host-side commands drive the Port
// against.
//
// The global interrupt mask is modelled as a mutex plus a flag: Atomic holds
// the mutex for the duration of the critical section, and every interrupt
// delivery acquires it before invoking a handler, so a critical section
// really does exclude the "ISR". The flag covers explicit
// DisableInterrupts/EnableInterrupts masking: delivery is suppressed while
// it is set, but the simulated hardware keeps shifting, exactly like real
// silicon with the I flag cleared.
//
// Individual register accesses serialize on a separate bus lock, mirroring
// the single-access atomicity of a real register read or write.
type Sim struct {
	clock uint32

	irqMu    sync.Mutex  // interrupt gate: held by Atomic and by delivery
	disabled atomic.Bool // global mask (the inverted I flag)

	mu sync.Mutex // register bus; guards everything below

	// programmed configuration, captured for assertions
	divisor     uint16
	doubleSpeed bool
	frame       FrameConfig

	// control bits
	rxEnabled    bool
	txEnabled    bool
	rxIntEnabled bool
	txIntEnabled bool

	// transmit path: data register feeding a shift register
	udr      byte
	udrFull  bool
	shift    byte
	shifting bool
	txc      bool
	wire     []byte

	// receive path
	rdr      byte
	rdrFull  bool
	rdrPerr  bool
	overruns int

	loopback bool

	port *Port // interrupt destination

	stop chan struct{}
	done chan struct{}
}

var _ Hardware = (*Sim)(nil)

// NewSim returns a simulated USART clocked at hz.
func NewSim(hz uint32) *Sim {
	return &Sim{clock: hz}
}

// Attach connects p as the destination for interrupt delivery. Call it
// before pushing bytes or starting the runner.
func (s *Sim) Attach(p *Port) {
	s.mu.Lock()
	s.port = p
	s.mu.Unlock()
}

// ---------------------------------------------------------------- Hardware

func (s *Sim) ClockFrequency() uint32 { return s.clock }

func (s *Sim) SetBaudDivisor(divisor uint16, doubleSpeed bool) {
	s.mu.Lock()
	s.divisor, s.doubleSpeed = divisor, doubleSpeed
	s.mu.Unlock()
}

func (s *Sim) SetFrameFormat(cfg FrameConfig) {
	s.mu.Lock()
	s.frame = cfg
	s.mu.Unlock()
}

func (s *Sim) WriteData(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.txEnabled {
		return
	}
	if !s.shifting {
		// Shifter idle: the byte moves straight through, the data
		// register stays free.
		s.shift, s.shifting = b, true
		return
	}
	s.udr, s.udrFull = b, true
}

func (s *Sim) ReadData() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rdrFull, s.rdrPerr = false, false
	return s.rdr
}

func (s *Sim) DataRegisterEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.udrFull
}

func (s *Sim) TxComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txc
}

func (s *Sim) ClearTxComplete() {
	s.mu.Lock()
	s.txc = false
	s.mu.Unlock()
}

func (s *Sim) ParityError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rdrPerr
}

func (s *Sim) EnableReceiver(on bool) {
	s.mu.Lock()
	s.rxEnabled = on
	s.mu.Unlock()
}

func (s *Sim) EnableTransmitter(on bool) {
	s.mu.Lock()
	s.txEnabled = on
	s.mu.Unlock()
}

func (s *Sim) EnableRxInterrupt(on bool) {
	s.mu.Lock()
	s.rxIntEnabled = on
	s.mu.Unlock()
}

func (s *Sim) EnableTxInterrupt(on bool) {
	s.mu.Lock()
	s.txIntEnabled = on
	s.mu.Unlock()
}

func (s *Sim) TxInterruptEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txIntEnabled
}

func (s *Sim) InterruptsEnabled() bool {
	return !s.disabled.Load()
}

// Atomic masks interrupt delivery for the duration of fn and restores the
// previous mask state, like an SREG save/cli/restore sequence.
func (s *Sim) Atomic(fn func()) {
	s.irqMu.Lock()
	defer s.irqMu.Unlock()
	prev := s.disabled.Swap(true)
	fn()
	s.disabled.Store(prev)
}

// ----------------------------------------------------------- interrupt I/O

// DisableInterrupts masks interrupt delivery globally. It returns only
// after any in-flight handler has completed, so the caller afterwards owns
// the interrupt-side state, as foreground code does after cli.
func (s *Sim) DisableInterrupts() {
	s.irqMu.Lock()
	s.disabled.Store(true)
	s.irqMu.Unlock()
}

// EnableInterrupts unmasks interrupt delivery and services any levels that
// became pending while masked.
func (s *Sim) EnableInterrupts() {
	s.irqMu.Lock()
	s.disabled.Store(false)
	s.irqMu.Unlock()
	s.dispatchRx()
	s.dispatchTx()
}

// Push delivers one byte as if it had arrived on the wire, invoking the
// receive interrupt when it is enabled. A byte still sitting unread in the
// data register is overwritten and counted as an overrun.
func (s *Sim) Push(b byte) {
	s.push(b, false)
}

// PushParityError delivers a byte flagged with a parity error.
func (s *Sim) PushParityError(b byte) {
	s.push(b, true)
}

func (s *Sim) push(b byte, perr bool) {
	s.mu.Lock()
	if !s.rxEnabled {
		s.mu.Unlock()
		return
	}
	if s.rdrFull {
		s.overruns++
	}
	s.rdr, s.rdrFull, s.rdrPerr = b, true, perr
	s.mu.Unlock()
	s.dispatchRx()
}

// ShiftOut advances the transmitter by one byte time: the byte in the shift
// register reaches the wire and a waiting data-register byte moves into the
// shifter. Pending data-register-empty interrupts are then delivered. Tests
// call it directly for deterministic stepping; Run calls it continuously.
func (s *Sim) ShiftOut() {
	s.irqMu.Lock()
	b, shifted := s.stepTx()
	s.irqMu.Unlock()
	s.dispatchTx()

	if shifted {
		s.mu.Lock()
		lb := s.loopback
		s.mu.Unlock()
		if lb {
			s.push(b, false)
		}
	}
}

// stepTx performs the hardware half of ShiftOut.
func (s *Sim) stepTx() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shifting {
		return 0, false
	}
	b := s.shift
	s.wire = append(s.wire, b)
	if s.udrFull {
		s.shift = s.udr
		s.udrFull = false
	} else {
		s.shifting = false
		// Frame shifted out with nothing queued behind it.
		s.txc = true
	}
	return b, true
}

// dispatchTx delivers the data-register-empty interrupt for as long as its
// level condition holds.
func (s *Sim) dispatchTx() {
	s.irqMu.Lock()
	defer s.irqMu.Unlock()
	for {
		if s.disabled.Load() {
			return
		}
		s.mu.Lock()
		pending := s.port != nil && s.txIntEnabled && !s.udrFull
		port := s.port
		s.mu.Unlock()
		if !pending {
			return
		}
		port.TransmitInterrupt()
	}
}

// dispatchRx delivers the receive-complete interrupt if its level condition
// holds.
func (s *Sim) dispatchRx() {
	s.irqMu.Lock()
	defer s.irqMu.Unlock()
	if s.disabled.Load() {
		return
	}
	s.mu.Lock()
	pending := s.port != nil && s.rxIntEnabled && s.rdrFull
	port := s.port
	s.mu.Unlock()
	if pending {
		port.ReceiveInterrupt()
	}
}

// Run starts a background goroutine that keeps the transmitter shifting and
// services pending interrupt levels, standing in for asynchronous hardware.
// Stop halts it.
func (s *Sim) Run() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			s.ShiftOut()
			s.dispatchRx()
			runtime.Gosched()
		}
	}(s.stop, s.done)
}

// Stop halts the background runner started by Run and waits for it to exit.
func (s *Sim) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}

// -------------------------------------------------------------- inspection

// SetLoopback connects the transmitter output back to the receiver input:
// every byte reaching the wire is also pushed into the receive path.
func (s *Sim) SetLoopback(on bool) {
	s.mu.Lock()
	s.loopback = on
	s.mu.Unlock()
}

// Divisor returns the programmed baud divisor and whether 2x-oversampled
// mode is selected.
func (s *Sim) Divisor() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.divisor, s.doubleSpeed
}

// FrameFormat returns the programmed frame format.
func (s *Sim) FrameFormat() FrameConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Wire returns a copy of every byte transmitted so far.
func (s *Sim) Wire() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.wire))
	copy(out, s.wire)
	return out
}

// TakeWire returns the bytes transmitted since the last call and clears the
// capture.
func (s *Sim) TakeWire() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.wire
	s.wire = nil
	return out
}

// Overruns returns how many received bytes were lost to data-register
// overwrite.
func (s *Sim) Overruns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overruns
}

// ReceiverEnabled reports the receiver enable bit.
func (s *Sim) ReceiverEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxEnabled
}

// TransmitterEnabled reports the transmitter enable bit.
func (s *Sim) TransmitterEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txEnabled
}
