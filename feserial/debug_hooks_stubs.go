//go:build !feserialdebug

package feserial

func (d *Device) dbgISR()         {}
func (d *Device) dbgOnByte(bool)  {}
func (d *Device) dbgReadWait()    {}
func (d *Device) dbgInterrupted() {}
