// sim/platform.go

package sim

import (
	"fmt"
	"sync"

	"github.com/jangala-dev/feserial/feserial"
)

// Platform maps simulated UARTs by base address and routes their receive
// interrupts. It implements feserial.Platform and feserial.PowerManager.
type Platform struct {
	mu    sync.Mutex
	opts  []Option
	uarts map[uintptr]*UART
	owner map[int]*UART // irq line -> UART, learned at Map
	lines map[int]*line
	power map[string]int

	failPower error
	failMap   error
	failIRQ   error
}

// NewPlatform returns a platform whose UARTs are created with opts.
func NewPlatform(opts ...Option) *Platform {
	return &Platform{
		opts:  opts,
		uarts: make(map[uintptr]*UART),
		owner: make(map[int]*UART),
		lines: make(map[int]*line),
		power: make(map[string]int),
	}
}

// FailPowerOn makes subsequent PowerOn calls fail with err (nil to clear).
func (p *Platform) FailPowerOn(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failPower = err
}

// FailMap makes subsequent Map calls fail with err (nil to clear).
func (p *Platform) FailMap(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failMap = err
}

// FailIRQ makes subsequent RequestIRQ calls fail with err (nil to clear).
func (p *Platform) FailIRQ(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failIRQ = err
}

// PowerOn implements feserial.PowerManager.
func (p *Platform) PowerOn(res feserial.Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPower != nil {
		return p.failPower
	}
	p.power[res.ID()]++
	return nil
}

// PowerOff implements feserial.PowerManager.
func (p *Platform) PowerOff(res feserial.Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.power[res.ID()] == 0 {
		return fmt.Errorf("sim: %s: power off while off", res.ID())
	}
	p.power[res.ID()]--
	return nil
}

// Powered reports whether the device with identity id holds a power reference.
func (p *Platform) Powered(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.power[id] > 0
}

// Map implements feserial.Platform. Mapping the same base again returns the
// same simulated UART with its register state intact.
func (p *Platform) Map(res feserial.Resource) (feserial.Bus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failMap != nil {
		return nil, p.failMap
	}
	u, ok := p.uarts[res.Base]
	if !ok {
		u = NewUART(p.opts...)
		p.uarts[res.Base] = u
	} else {
		u.remap()
	}
	p.owner[res.IRQ] = u
	return u, nil
}

// RequestIRQ implements feserial.Platform.
func (p *Platform) RequestIRQ(irq int, h func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failIRQ != nil {
		return p.failIRQ
	}
	u, ok := p.owner[irq]
	if !ok {
		return fmt.Errorf("sim: irq %d: no device on line", irq)
	}
	if _, busy := p.lines[irq]; busy {
		return fmt.Errorf("sim: irq %d: already requested", irq)
	}
	l := newLine(u, h)
	p.lines[irq] = l
	go l.run()
	u.attach(l)
	return nil
}

// FreeIRQ implements feserial.Platform. It returns once the handler has
// stopped running.
func (p *Platform) FreeIRQ(irq int) error {
	p.mu.Lock()
	l, ok := p.lines[irq]
	delete(p.lines, irq)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("sim: irq %d: not requested", irq)
	}
	l.uart.detach()
	l.shutdown()
	return nil
}

// UART returns the simulated UART mapped at base, if any.
func (p *Platform) UART(base uintptr) *UART {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uarts[base]
}

// IRQRequested reports whether a handler is attached to irq.
func (p *Platform) IRQRequested(irq int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.lines[irq]
	return ok
}

// Interrupts returns how many times the handler on irq has been invoked.
func (p *Platform) Interrupts(irq int) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.lines[irq]; ok {
		return l.fired.Load()
	}
	return 0
}
