// serial/stats.go

package serial

import "sync/atomic"

// Stats is a snapshot of the driver counters accumulated since Begin (or
// the last StatsReset).
type Stats struct {
	// Interrupt-level
	RxInterrupts uint32 // receive-complete interrupt entries
	TxInterrupts uint32 // data-register-empty interrupt entries

	// Receive-path quality
	ParityErrors uint32 // bytes discarded for parity errors
	RingDrops    uint32 // bytes dropped because the RX ring was full
	RxMaxQueued  uint32 // high-water mark of RX ring occupancy

	// Notification behaviour
	NotifySent    uint32 // coalesced wake-ups that were delivered
	NotifyDropped uint32 // wake-ups coalesced into an already-pending one
	SpuriousWakes uint32 // blocking reads woken without data available
}

// counters is the live, atomically-updated form of Stats.
type counters struct {
	rxInterrupts  atomic.Uint32
	txInterrupts  atomic.Uint32
	parityErrors  atomic.Uint32
	ringDrops     atomic.Uint32
	rxMaxQueued   atomic.Uint32
	notifySent    atomic.Uint32
	notifyDropped atomic.Uint32
	spuriousWakes atomic.Uint32
}

func (c *counters) noteRxHighWater(used uint32) {
	for {
		max := c.rxMaxQueued.Load()
		if used <= max {
			return
		}
		if c.rxMaxQueued.CompareAndSwap(max, used) {
			return
		}
	}
}

// Stats returns a copy of the current counters.
func (p *Port) Stats() Stats {
	return Stats{
		RxInterrupts:  p.stats.rxInterrupts.Load(),
		TxInterrupts:  p.stats.txInterrupts.Load(),
		ParityErrors:  p.stats.parityErrors.Load(),
		RingDrops:     p.stats.ringDrops.Load(),
		RxMaxQueued:   p.stats.rxMaxQueued.Load(),
		NotifySent:    p.stats.notifySent.Load(),
		NotifyDropped: p.stats.notifyDropped.Load(),
		SpuriousWakes: p.stats.spuriousWakes.Load(),
	}
}

// StatsReset zeroes all counters.
func (p *Port) StatsReset() {
	p.stats.rxInterrupts.Store(0)
	p.stats.txInterrupts.Store(0)
	p.stats.parityErrors.Store(0)
	p.stats.ringDrops.Store(0)
	p.stats.rxMaxQueued.Store(0)
	p.stats.notifySent.Store(0)
	p.stats.notifyDropped.Store(0)
	p.stats.spuriousWakes.Store(0)
}
