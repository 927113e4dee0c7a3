// feserial/interrupt.go

package feserial

// handleInterrupt services one receive-data interrupt: it reads exactly one
// byte (which clears the hardware data-ready condition) and pushes it into
// the receive ring. It never blocks, never allocates and never takes the
// register lock.
func (d *Device) handleInterrupt() {
	b := d.regs.readData()
	err := d.rx.Push(b)
	d.dbgOnByte(err == nil)
	d.dbgISR()
}
