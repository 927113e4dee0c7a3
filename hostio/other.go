//go:build !linux

package hostio

import (
	"fmt"

	"github.com/jangala-dev/feserial/feserial"
)

// Platform is unavailable outside Linux; every call fails with
// feserial.ErrHardwareUnavailable.
type Platform struct{ opts options }

// New returns a platform that cannot reach hardware.
func New(opts ...Option) *Platform {
	return &Platform{opts: buildOptions(opts)}
}

func (p *Platform) Map(res feserial.Resource) (feserial.Bus, error) {
	return nil, fmt.Errorf("hostio: %s: %w", res.ID(), feserial.ErrHardwareUnavailable)
}

func (p *Platform) RequestIRQ(irq int, h func()) error {
	return fmt.Errorf("hostio: irq %d: %w", irq, feserial.ErrHardwareUnavailable)
}

func (p *Platform) FreeIRQ(irq int) error {
	return fmt.Errorf("hostio: irq %d: %w", irq, feserial.ErrHardwareUnavailable)
}
