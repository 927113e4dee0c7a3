// feserial/device.go

// Package feserial drives an OMAP 16550-compatible UART: synchronous,
// status-polled transmit; interrupt-driven receive into a bounded ring; and
// a session layer offering blocking one-byte reads, CRLF-translating writes
// and a transmit byte counter.
package feserial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// TargetBaud is the fixed line rate programmed at bring-up.
const TargetBaud = 115200

// Device is one probed UART. It is owned by a Registry; sessions refer to it
// by identity only.
type Device struct {
	name     string
	gen      uint64
	res      Resource
	platform Platform

	bus     Bus
	regs    *Regs
	divisor uint32

	txCount     atomic.Uint32
	txSpinLimit int
	maxTransfer int

	rx *RingBuffer

	// life is held shared by transmitting callers and exclusively by teardown,
	// so registers are never unmapped under a writer.
	life  sync.RWMutex
	mu    sync.Mutex
	state State

	ctx    context.Context
	cancel context.CancelCauseFunc

	log     *slog.Logger
	irqLog  *slog.Logger
	txLog   *slog.Logger
	sessLog *slog.Logger
	stats   Stats
}

func newDevice(res Resource, p Platform, o options) *Device {
	ctx, cancel := context.WithCancelCause(context.Background())
	name := res.ID()
	return &Device{
		name:        name,
		res:         res,
		platform:    p,
		rx:          NewRingBuffer(o.rxCapacity),
		txSpinLimit: o.txSpinLimit,
		maxTransfer: o.maxTransfer,
		ctx:         ctx,
		cancel:      cancel,
		log:         componentLogger(o.log, ComponentDevice).With("device", name),
		irqLog:      componentLogger(o.log, ComponentIRQ).With("device", name),
		txLog:       componentLogger(o.log, ComponentTx).With("device", name),
		sessLog:     componentLogger(o.log, ComponentSession).With("device", name),
	}
}

// Name returns the device identity.
func (d *Device) Name() string { return d.name }

// IRQ returns the interrupt line the device was probed with.
func (d *Device) IRQ() int { return d.res.IRQ }

// Divisor returns the programmed baud divisor.
func (d *Device) Divisor() uint32 { return d.divisor }

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) setState(s State) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	d.mu.Unlock()
	d.log.Debug("state", "from", prev.String(), "to", s.String())
}

// Buffered returns the number of received bytes waiting to be read.
func (d *Device) Buffered() int { return d.rx.Used() }

// Overruns returns how many received bytes were lost to buffer overflow.
func (d *Device) Overruns() uint32 { return d.rx.Overruns() }

// Divisor computes the baud divisor for clock at TargetBaud with integer
// truncation. A result that does not fit DLL/DLM is rejected.
func Divisor(clock uint32) (uint32, error) {
	div := clock / 16 / TargetBaud
	if div == 0 || div > 0xFFFF {
		return 0, fmt.Errorf("clock %d Hz gives divisor %d: %w", clock, div, ErrHardwareUnavailable)
	}
	return div, nil
}

// configure programs line format and baud rate. It must run before
// interrupts are enabled.
func (d *Device) configure(div uint32) {
	d.divisor = div
	d.regs.Apply(
		// 1) Disable the UART while configuring.
		Step{RegMDR1, MDR1Disable},
		// 2) Open the divisor latch.
		Step{RegLCR, 0x00},
		Step{RegLCR, LCRDLAB},
		// 3) Baud divisor.
		Step{RegDLL, div & 0xFF},
		Step{RegDLM, (div >> 8) & 0xFF},
		// 4) 8N1, latch closed.
		Step{RegLCR, LCRWordLen8},
		// 5) Enable and soft-reset both FIFOs.
		Step{RegFCR, FCREnableFIFO | FCRClearRx | FCRClearTx},
		// 6) Back to 16x UART mode.
		Step{RegMDR1, MDR1Mode16x},
	)
}

func (d *Device) quiesce() {
	d.regs.Write(MDR1Disable, RegMDR1)
}

func (d *Device) enableInterrupts() error {
	if err := d.platform.RequestIRQ(d.res.IRQ, d.handleInterrupt); err != nil {
		return fmt.Errorf("%s: request irq %d: %w: %w", d.name, d.res.IRQ, ErrHardwareUnavailable, err)
	}
	d.regs.Write(IERRxData, RegIER)
	d.irqLog.Debug("requested", "irq", d.res.IRQ)
	return nil
}

func (d *Device) disableInterrupts() error {
	d.regs.Write(0, RegIER)
	if err := d.platform.FreeIRQ(d.res.IRQ); err != nil {
		return fmt.Errorf("%s: free irq %d: %w", d.name, d.res.IRQ, err)
	}
	d.irqLog.Debug("released", "irq", d.res.IRQ)
	return nil
}

// acquire pins the device in the running state for a register-touching
// operation. The caller must call release.
func (d *Device) acquire() error {
	d.life.RLock()
	if d.State() != StateRunning {
		d.life.RUnlock()
		return fmt.Errorf("%s: %w", d.name, ErrNoDevice)
	}
	return nil
}

func (d *Device) release() { d.life.RUnlock() }

// teardown reverses bring-up. unregister is called between disabling
// interrupts and unmapping the registers.
func (d *Device) teardown(unregister func()) error {
	d.life.Lock()
	defer d.life.Unlock()

	if s := d.State(); s != StateRunning {
		return fmt.Errorf("%s: teardown from %s: %w", d.name, s, ErrInvalidState)
	}

	errIRQ := d.disableInterrupts()
	d.setState(StateInterruptsDisabled)

	unregister()
	d.setState(StateUnregistered)
	d.cancel(fmt.Errorf("%s: %w", d.name, ErrNoDevice))

	d.quiesce()
	errMap := d.bus.Unmap()
	d.setState(StateRegistersUnmapped)

	var errPower error
	if pm, ok := d.platform.(PowerManager); ok {
		errPower = pm.PowerOff(d.res)
	}
	d.rx.Clear()
	d.setState(StateUninitialized)

	err := errors.Join(errIRQ, errMap, errPower)
	if err != nil {
		d.log.Warn("removed with errors", "err", err)
	} else {
		d.log.Info("removed")
	}
	return err
}
