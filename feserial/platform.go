// feserial/platform.go

package feserial

import (
	"fmt"
	"strconv"
)

// Resource describes one UART as discovered by the platform.
type Resource struct {
	Name           string  // device identity; defaults to "feserial-<base hex>"
	Base           uintptr // physical base address of the register block
	Size           uintptr // length of the register block in bytes
	ClockFrequency uint32  // functional clock feeding the baud generator, Hz
	IRQ            int     // interrupt line
}

// ID returns the device identity used by the registry.
func (r Resource) ID() string {
	if r.Name != "" {
		return r.Name
	}
	return "feserial-" + strconv.FormatUint(uint64(r.Base), 16)
}

func (r Resource) validate() error {
	if r.Base == 0 {
		return fmt.Errorf("%s: no register base: %w", r.ID(), ErrHardwareUnavailable)
	}
	if r.ClockFrequency == 0 {
		return fmt.Errorf("%s: no clock-frequency: %w", r.ID(), ErrHardwareUnavailable)
	}
	return nil
}

// Platform maps registers and routes interrupts. It stands in for the
// platform bus, ioremap and request_irq of the host environment.
type Platform interface {
	// Map returns the register block described by res.
	Map(res Resource) (Bus, error)

	// RequestIRQ arranges for h to run each time irq fires. Invocations of h
	// for one line are serialised.
	RequestIRQ(irq int, h func()) error

	// FreeIRQ detaches the handler of irq. Once it returns, h is not running
	// and will not be called again.
	FreeIRQ(irq int) error
}

// PowerManager is implemented by platforms that gate the UART clock.
type PowerManager interface {
	PowerOn(res Resource) error
	PowerOff(res Resource) error
}
