// serial/atmega.go

//go:build atmega

package serial

import (
	"device/avr"
	"machine"
	"runtime/interrupt"
)

// USART0 is the buffered driver for the first hardware USART, wired to its
// receive-complete and data-register-empty interrupt vectors at init.
var USART0 = NewPort(usart0{})

func init() {
	interrupt.New(avr.IRQ_USART_RX, func(interrupt.Interrupt) {
		USART0.ReceiveInterrupt()
	})
	interrupt.New(avr.IRQ_USART_UDRE, func(interrupt.Interrupt) {
		USART0.TransmitInterrupt()
	})
}

// usart0 maps the Hardware interface onto the USART0 register block. Every
// method is a single register access; the multi-step sequences live in Port
// and run under Atomic.
type usart0 struct{}

func (usart0) ClockFrequency() uint32 { return machine.CPUFrequency() }

func (usart0) SetBaudDivisor(divisor uint16, doubleSpeed bool) {
	avr.UBRR0H.Set(uint8(divisor >> 8))
	avr.UBRR0L.Set(uint8(divisor))
	if doubleSpeed {
		avr.UCSR0A.Set(avr.UCSR0A_U2X0)
	} else {
		avr.UCSR0A.Set(0)
	}
}

func (usart0) SetFrameFormat(cfg FrameConfig) {
	avr.UCSR0C.Set(uint8(cfg))
}

func (usart0) WriteData(b byte) { avr.UDR0.Set(b) }
func (usart0) ReadData() byte   { return avr.UDR0.Get() }

func (usart0) DataRegisterEmpty() bool { return avr.UCSR0A.HasBits(avr.UCSR0A_UDRE0) }
func (usart0) TxComplete() bool        { return avr.UCSR0A.HasBits(avr.UCSR0A_TXC0) }

// ClearTxComplete writes the flag's bit position; on this hardware the
// transmit-complete flag is cleared by writing a one to it. The mode bits
// sharing the register are rewritten unchanged and the other flag bits read
// as written-zero, so the plain Set does not disturb them.
func (usart0) ClearTxComplete() {
	avr.UCSR0A.Set(avr.UCSR0A.Get()&(avr.UCSR0A_U2X0|avr.UCSR0A_MPCM0) | avr.UCSR0A_TXC0)
}

func (usart0) ParityError() bool { return avr.UCSR0A.HasBits(avr.UCSR0A_UPE0) }

func (usart0) EnableReceiver(on bool)    { setControlBit(avr.UCSR0B_RXEN0, on) }
func (usart0) EnableTransmitter(on bool) { setControlBit(avr.UCSR0B_TXEN0, on) }
func (usart0) EnableRxInterrupt(on bool) { setControlBit(avr.UCSR0B_RXCIE0, on) }
func (usart0) EnableTxInterrupt(on bool) { setControlBit(avr.UCSR0B_UDRIE0, on) }

func (usart0) TxInterruptEnabled() bool {
	return avr.UCSR0B.HasBits(avr.UCSR0B_UDRIE0)
}

func (usart0) InterruptsEnabled() bool {
	return avr.SREG.HasBits(1 << 7)
}

func (usart0) Atomic(fn func()) {
	state := interrupt.Disable()
	fn()
	interrupt.Restore(state)
}

func setControlBit(mask uint8, on bool) {
	if on {
		avr.UCSR0B.SetBits(mask)
	} else {
		avr.UCSR0B.ClearBits(mask)
	}
}
