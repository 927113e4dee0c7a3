// feserial/registry.go

package feserial

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/exp/slices"
)

// Registry owns every probed Device, keyed by identity. Sessions hold the
// identity and a generation number rather than a pointer, so a session whose
// device was removed (or removed and probed again) fails cleanly with
// ErrNoDevice.
type Registry struct {
	mu   sync.RWMutex
	devs map[string]*Device
	gen  uint64
	base *slog.Logger
	log  *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger selects DefaultLogger.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = defaultLogger()
	}
	return &Registry{
		devs: make(map[string]*Device),
		base: log,
		log:  componentLogger(log, ComponentRegistry),
	}
}

// Probe brings up the UART described by res on platform p and registers it.
//
// Bring-up runs power-on, register mapping, hardware configuration, interrupt
// enable and registration in order. If any step fails, every earlier step is
// undone in reverse before the error is returned.
func (r *Registry) Probe(p Platform, res Resource, opts ...Option) (_ *Device, err error) {
	o := buildOptions(opts)
	if o.log == nil {
		o.log = r.base
	}
	if err := res.validate(); err != nil {
		return nil, err
	}
	if _, ok := r.Lookup(res.ID()); ok {
		return nil, fmt.Errorf("%s: %w", res.ID(), ErrExists)
	}

	d := newDevice(res, p, o)
	var undo []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		d.cancel(err)
		d.setState(StateUninitialized)
		d.log.Warn("probe failed", "err", err)
	}()

	// 1) Power.
	if pm, ok := p.(PowerManager); ok {
		if err := pm.PowerOn(res); err != nil {
			return nil, fmt.Errorf("%s: power on: %w: %w", d.name, ErrHardwareUnavailable, err)
		}
		undo = append(undo, func() { _ = pm.PowerOff(res) })
	}

	// 2) Registers.
	bus, err := p.Map(res)
	if err != nil {
		return nil, fmt.Errorf("%s: map registers: %w: %w", d.name, ErrHardwareUnavailable, err)
	}
	d.bus = bus
	d.regs = newRegs(bus)
	undo = append(undo, func() { _ = bus.Unmap() })
	d.setState(StateRegistersMapped)

	// 3) Line format and baud rate.
	div, err := Divisor(res.ClockFrequency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.name, err)
	}
	d.configure(div)
	undo = append(undo, d.quiesce)
	d.setState(StateHardwareConfigured)

	// 4) Receive interrupt.
	if err := d.enableInterrupts(); err != nil {
		return nil, err
	}
	undo = append(undo, func() { _ = d.disableInterrupts() })
	d.setState(StateInterruptsEnabled)

	// Probe-time test write, before anyone else can reach the device.
	if len(o.banner) > 0 {
		if _, err := d.transmit(o.banner); err != nil {
			return nil, fmt.Errorf("%s: banner: %w", d.name, err)
		}
	}

	// 5) Registration.
	if err := r.register(d); err != nil {
		return nil, err
	}
	undo = append(undo, func() { r.unregister(d) })
	d.setState(StateRegistered)
	d.setState(StateRunning)

	d.log.Info("probed",
		"base", fmt.Sprintf("%#x", res.Base),
		"irq", res.IRQ,
		"clock", res.ClockFrequency,
		"divisor", div)
	return d, nil
}

// ProbeAll probes each resource independently. A failure affects only that
// device; the devices that came up are returned together with the joined
// errors of those that did not.
func (r *Registry) ProbeAll(p Platform, resources []Resource, opts ...Option) ([]*Device, error) {
	var (
		devs []*Device
		errs []error
	)
	for _, res := range resources {
		d, err := r.Probe(p, res, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		devs = append(devs, d)
	}
	return devs, errors.Join(errs...)
}

// Remove tears down and unregisters the device with identity id.
func (r *Registry) Remove(id string) error {
	d, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNoDevice)
	}
	return d.teardown(func() { r.unregister(d) })
}

// Close removes every registered device.
func (r *Registry) Close() error {
	var errs []error
	for _, id := range r.Devices() {
		if err := r.Remove(id); err != nil && !errors.Is(err, ErrNoDevice) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the registered device with identity id.
func (r *Registry) Lookup(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devs[id]
	return d, ok
}

// Devices returns the identities of all registered devices in sorted order.
func (r *Registry) Devices() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.devs))
	for id := range r.devs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Open starts a session on the device with identity id.
func (r *Registry) Open(id string) (*Session, error) {
	d, ok := r.Lookup(id)
	if !ok || d.State() != StateRunning {
		return nil, fmt.Errorf("open %s: %w", id, ErrNoDevice)
	}
	s := newSession(r, d)
	d.sessLog.Debug("opened", "gen", s.gen)
	return s, nil
}

func (r *Registry) register(d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devs[d.name]; ok {
		return fmt.Errorf("%s: %w", d.name, ErrExists)
	}
	r.gen++
	d.gen = r.gen
	r.devs[d.name] = d
	r.log.Debug("registered", "device", d.name, "gen", d.gen)
	return nil
}

func (r *Registry) unregister(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.devs[d.name]; ok && cur.gen == d.gen {
		delete(r.devs, d.name)
	}
}

// resolve returns the device for (id, gen) if it is still registered.
func (r *Registry) resolve(id string, gen uint64) (*Device, error) {
	d, ok := r.Lookup(id)
	if !ok || d.gen != gen {
		return nil, fmt.Errorf("%s: %w", id, ErrNoDevice)
	}
	return d, nil
}
