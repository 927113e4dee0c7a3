//go:build feserialdebug

package feserial

import "sync/atomic"

// Called once per serviced interrupt.
func (d *Device) dbgISR() {
	atomic.AddUint32(&d.stats.ISRCount, 1)
}

// Called per received byte with the Push() outcome.
func (d *Device) dbgOnByte(pushOK bool) {
	if !pushOK {
		atomic.AddUint32(&d.stats.RingOverruns, 1)
		return
	}
	atomic.AddUint32(&d.stats.RingPuts, 1)
	// track high-water mark
	used := uint32(d.rx.Used())
	for {
		max := atomic.LoadUint32(&d.stats.RingMaxUsed)
		if used <= max {
			break
		}
		if atomic.CompareAndSwapUint32(&d.stats.RingMaxUsed, max, used) {
			break
		}
	}
}

func (d *Device) dbgReadWait() {
	atomic.AddUint32(&d.stats.ReadWaits, 1)
}
func (d *Device) dbgInterrupted() {
	atomic.AddUint32(&d.stats.Interrupted, 1)
}
