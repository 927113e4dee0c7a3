//go:build feserialdebug

package feserial

import "sync/atomic"

// Stats holds counters since the last reset.
type Stats struct {
	// ISR-level
	ISRCount uint32 // interrupts serviced

	// Ring buffer
	RingPuts     uint32 // bytes pushed without loss
	RingOverruns uint32 // pushes that overwrote an unread byte
	RingMaxUsed  uint32 // high-water mark of ring occupancy

	// Blocking API behaviour
	ReadWaits   uint32 // reads that found the ring empty and had to wait
	Interrupted uint32 // reads cancelled before a byte arrived
}

func (d *Device) DebugReset() {
	atomic.StoreUint32(&d.stats.ISRCount, 0)
	atomic.StoreUint32(&d.stats.RingPuts, 0)
	atomic.StoreUint32(&d.stats.RingOverruns, 0)
	atomic.StoreUint32(&d.stats.RingMaxUsed, 0)
	atomic.StoreUint32(&d.stats.ReadWaits, 0)
	atomic.StoreUint32(&d.stats.Interrupted, 0)
}

func (d *Device) DebugStats() Stats {
	return Stats{
		ISRCount: atomic.LoadUint32(&d.stats.ISRCount),

		RingPuts:     atomic.LoadUint32(&d.stats.RingPuts),
		RingOverruns: atomic.LoadUint32(&d.stats.RingOverruns),
		RingMaxUsed:  atomic.LoadUint32(&d.stats.RingMaxUsed),

		ReadWaits:   atomic.LoadUint32(&d.stats.ReadWaits),
		Interrupted: atomic.LoadUint32(&d.stats.Interrupted),
	}
}

// Snapshot of the line registers. RX is never read here: that would steal a
// byte from the interrupt handler.
type RegSnapshot struct {
	IER  uint32
	IIR  uint32
	LCR  uint32
	MCR  uint32
	LSR  uint32
	MSR  uint32
	MDR1 uint32
}

func (d *Device) DebugRegs() RegSnapshot {
	if err := d.acquire(); err != nil {
		return RegSnapshot{}
	}
	defer d.release()
	return RegSnapshot{
		IER:  d.regs.Read(RegIER),
		IIR:  d.regs.Read(RegIIR),
		LCR:  d.regs.Read(RegLCR),
		MCR:  d.regs.Read(RegMCR),
		LSR:  d.regs.Read(RegLSR),
		MSR:  d.regs.Read(RegMSR),
		MDR1: d.regs.Read(RegMDR1),
	}
}
