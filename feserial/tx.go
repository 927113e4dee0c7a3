// feserial/tx.go

package feserial

import (
	"fmt"
	"runtime"
)

// writeChar waits for THRE and stores c in the transmit register.
//
// With no spin limit the wait is unbounded: if the hardware never asserts
// THRE the caller hangs. No interrupt reports transmit readiness, so the
// wait stays a poll rather than a scheduler sleep.
func (d *Device) writeChar(c byte) error {
	for polls := 1; d.regs.Read(RegLSR)&LSRTHRE == 0; polls++ {
		if d.txSpinLimit > 0 && polls >= d.txSpinLimit {
			return fmt.Errorf("%s: transmitter not ready after %d polls: %w", d.name, polls, ErrIOFault)
		}
		relax()
	}
	d.regs.Write(uint32(c), RegTX)
	return nil
}

// transmit sends p, following every '\n' with '\r'. It returns the number
// of bytes of p consumed and advances the transmit counter by the same
// amount; injected '\r' bytes are not counted.
func (d *Device) transmit(p []byte) (int, error) {
	for i, c := range p {
		if err := d.writeChar(c); err != nil {
			d.txLog.Warn("transmit stalled", "sent", i, "err", err)
			return i, err
		}
		d.txCount.Add(1)
		if c == '\n' {
			if err := d.writeChar('\r'); err != nil {
				d.txLog.Warn("transmit stalled", "sent", i+1, "err", err)
				return i + 1, err
			}
		}
	}
	return len(p), nil
}

// TxCount returns the number of caller bytes transmitted since the last
// reset. The '\r' sent after each '\n' is not counted.
func (d *Device) TxCount() uint32 { return d.txCount.Load() }

// ResetTxCount zeroes the transmit counter.
func (d *Device) ResetTxCount() { d.txCount.Store(0) }

// relax yields between status polls.
func relax() { runtime.Gosched() }
