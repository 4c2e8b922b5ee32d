// serial/hal.go

package serial

import "errors"

// Parity defines the parity setting used for serial communication.
type Parity uint8

const (
	// ParityNone disables parity generation and checking (the most common setting).
	ParityNone Parity = iota
	// ParityEven sets even parity (total number of 1 bits is even).
	ParityEven
	// ParityOdd sets odd parity (total number of 1 bits is odd).
	ParityOdd
)

// FrameConfig selects data bits, parity and stop bits, encoded the way the
// USART frame-format register expects it.
type FrameConfig uint8

const (
	Config5N1 FrameConfig = 0x00
	Config6N1 FrameConfig = 0x02
	Config7N1 FrameConfig = 0x04
	Config8N1 FrameConfig = 0x06
	Config5N2 FrameConfig = 0x08
	Config6N2 FrameConfig = 0x0A
	Config7N2 FrameConfig = 0x0C
	Config8N2 FrameConfig = 0x0E
	Config5E1 FrameConfig = 0x20
	Config6E1 FrameConfig = 0x22
	Config7E1 FrameConfig = 0x24
	Config8E1 FrameConfig = 0x26
	Config5E2 FrameConfig = 0x28
	Config6E2 FrameConfig = 0x2A
	Config7E2 FrameConfig = 0x2C
	Config8E2 FrameConfig = 0x2E
	Config5O1 FrameConfig = 0x30
	Config6O1 FrameConfig = 0x32
	Config7O1 FrameConfig = 0x34
	Config8O1 FrameConfig = 0x36
	Config5O2 FrameConfig = 0x38
	Config6O2 FrameConfig = 0x3A
	Config7O2 FrameConfig = 0x3C
	Config8O2 FrameConfig = 0x3E
)

// Frame builds a FrameConfig from data bits (5-8), stop bits (1-2) and
// parity.
func Frame(databits, stopbits uint8, parity Parity) (FrameConfig, error) {
	if databits < 5 || databits > 8 {
		return 0, errors.New("serial: invalid databits")
	}
	if stopbits != 1 && stopbits != 2 {
		return 0, errors.New("serial: invalid stopbits")
	}
	cfg := FrameConfig(databits-5)<<1 | FrameConfig(stopbits-1)<<3
	switch parity {
	case ParityEven:
		cfg |= 0x20
	case ParityOdd:
		cfg |= 0x30
	}
	return cfg, nil
}

// Hardware is the register-access surface of one USART instance. The driver
// is written against this interface so the same state machines run on the
// simulated register file used by tests and host tools and on a real port.
//
// Methods are called from both foreground and interrupt context. An
// implementation maps each method to a single register access and must not
// block, with the exception of Atomic.
type Hardware interface {
	// ClockFrequency returns the peripheral clock the baud divisor is
	// derived from.
	ClockFrequency() uint32

	// SetBaudDivisor programs the baud-rate divisor. doubleSpeed selects
	// the 2x-oversampled mode.
	SetBaudDivisor(divisor uint16, doubleSpeed bool)

	// SetFrameFormat programs data bits, parity and stop bits.
	SetFrameFormat(cfg FrameConfig)

	// WriteData places one byte in the transmit data register.
	WriteData(b byte)

	// ReadData returns and consumes the byte in the receive data register.
	ReadData() byte

	// DataRegisterEmpty reports whether the transmit data register can
	// accept a new byte.
	DataRegisterEmpty() bool

	// TxComplete reports whether the transmitter has shifted out all
	// queued data. The flag has no defined state until the first byte has
	// been transmitted after power-up.
	TxComplete() bool

	// ClearTxComplete resets the transmit-complete flag, preserving the
	// other status bits.
	ClearTxComplete()

	// ParityError reports whether the byte currently in the receive data
	// register arrived with a parity error. Only valid until ReadData
	// consumes the byte.
	ParityError() bool

	// Receiver, transmitter and interrupt-source enables.
	EnableReceiver(on bool)
	EnableTransmitter(on bool)

	// EnableRxInterrupt masks or unmasks the receive-complete interrupt.
	EnableRxInterrupt(on bool)

	// EnableTxInterrupt masks or unmasks the data-register-empty
	// interrupt that drains the software transmit buffer.
	EnableTxInterrupt(on bool)

	// TxInterruptEnabled reports whether the data-register-empty
	// interrupt is currently unmasked.
	TxInterruptEnabled() bool

	// InterruptsEnabled reports whether interrupts are enabled globally
	// (the processor's I flag, not the per-source masks above).
	InterruptsEnabled() bool

	// Atomic runs fn with interrupts masked and restores the previous
	// state afterwards. It is the critical-section primitive guarding the
	// multi-step updates the interrupt handler must never observe
	// half-done.
	Atomic(fn func())
}
