//go:build !feserialdebug

package feserial

type Stats struct{}

func (d *Device) DebugReset()       {}
func (d *Device) DebugStats() Stats { return Stats{} }

type RegSnapshot struct{}

func (d *Device) DebugRegs() RegSnapshot { return RegSnapshot{} }
