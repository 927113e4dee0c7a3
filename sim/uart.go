// sim/uart.go

// Package sim provides a simulated OMAP 16550-compatible UART and a platform
// that maps it and delivers its receive interrupts, so the feserial driver
// can run without hardware.
package sim

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jangala-dev/feserial/feserial"
)

// DefaultFIFODepth is the hardware receive FIFO depth of the simulated UART.
const DefaultFIFODepth = 64

// Access is one recorded register access.
type Access struct {
	Write bool
	Reg   feserial.Reg
	Val   uint32
}

func (a Access) String() string {
	if a.Write {
		return fmt.Sprintf("W[%d]=%#x", a.Reg, a.Val)
	}
	return fmt.Sprintf("R[%d]=%#x", a.Reg, a.Val)
}

// Option configures a simulated UART.
type Option func(*UART)

// WithLoopback wires TX to RX, like a cable between the two pins.
func WithLoopback() Option {
	return func(u *UART) { u.loopback = true }
}

// WithOutput copies every transmitted byte to w.
func WithOutput(w io.Writer) Option {
	return func(u *UART) { u.out = w }
}

// WithFIFODepth sets the receive FIFO depth.
func WithFIFODepth(n int) Option {
	return func(u *UART) {
		if n > 0 {
			u.depth = n
		}
	}
}

// WithoutTrace disables register access recording.
func WithoutTrace() Option {
	return func(u *UART) { u.tracing = false }
}

// UART is a simulated register block. It implements feserial.Bus.
type UART struct {
	mu sync.Mutex

	dll, dlm byte
	ier      byte
	fcr      byte
	lcr      byte
	mcr      byte
	scr      byte
	mdr1     byte

	rx       []byte // hardware receive FIFO
	depth    int
	overrun  bool
	rxReads  uint64
	dropped  uint64
	txBusy   int  // LSR polls left that report THRE clear
	txStuck  bool // THRE never asserts
	tx       []byte
	out      io.Writer
	loopback bool

	tracing bool
	trace   []Access

	mapped bool
	faults int // accesses while unmapped
	irq    *line
}

// NewUART returns a simulated UART in its reset state.
func NewUART(opts ...Option) *UART {
	u := &UART{
		mdr1:    feserial.MDR1Disable,
		depth:   DefaultFIFODepth,
		tracing: true,
		mapped:  true,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Load implements feserial.Bus.
func (u *UART) Load(off feserial.Reg) uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.mapped {
		u.faults++
		return 0
	}
	v := uint32(u.readRegister(off))
	u.record(Access{Reg: off, Val: v})
	return v
}

// Store implements feserial.Bus.
func (u *UART) Store(off feserial.Reg, v uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.mapped {
		u.faults++
		return
	}
	u.record(Access{Write: true, Reg: off, Val: v})
	u.writeRegister(off, byte(v))
}

// Unmap implements feserial.Bus.
func (u *UART) Unmap() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.mapped {
		return fmt.Errorf("sim: unmap of unmapped block")
	}
	u.mapped = false
	return nil
}

func (u *UART) readRegister(off feserial.Reg) byte {
	dlab := u.lcr&feserial.LCRDLAB != 0
	switch off {
	case feserial.RegRX:
		if dlab {
			return u.dll
		}
		if len(u.rx) == 0 {
			return 0
		}
		b := u.rx[0]
		u.rx = u.rx[1:]
		u.rxReads++
		return b
	case feserial.RegIER:
		if dlab {
			return u.dlm
		}
		return u.ier
	case feserial.RegIIR:
		iir := byte(0x01) // no interrupt pending
		if u.rxPendingLocked() {
			iir = 0x04
		}
		if u.fcr&feserial.FCREnableFIFO != 0 {
			iir |= 0xC0
		}
		return iir
	case feserial.RegLCR:
		return u.lcr
	case feserial.RegMCR:
		return u.mcr
	case feserial.RegLSR:
		return u.lsrLocked()
	case feserial.RegMSR:
		return 0
	case feserial.RegSCR:
		return u.scr
	case feserial.RegMDR1:
		return u.mdr1
	}
	return 0
}

func (u *UART) lsrLocked() byte {
	var lsr byte
	if len(u.rx) > 0 {
		lsr |= feserial.LSRDataReady
	}
	if u.overrun {
		lsr |= feserial.LSROverrun
		u.overrun = false
	}
	switch {
	case u.txStuck:
	case u.txBusy > 0:
		u.txBusy--
	default:
		lsr |= feserial.LSRTHRE | feserial.LSRTEMT
	}
	return lsr
}

func (u *UART) writeRegister(off feserial.Reg, v byte) {
	dlab := u.lcr&feserial.LCRDLAB != 0
	switch off {
	case feserial.RegTX:
		if dlab {
			u.dll = v
			return
		}
		u.transmitLocked(v)
	case feserial.RegIER:
		if dlab {
			u.dlm = v
			return
		}
		u.ier = v & 0x0F
		u.kickLocked()
	case feserial.RegFCR:
		if v&feserial.FCRClearRx != 0 {
			u.rx = nil
			u.overrun = false
		}
		u.fcr = v &^ (feserial.FCRClearRx | feserial.FCRClearTx)
	case feserial.RegLCR:
		u.lcr = v
	case feserial.RegMCR:
		u.mcr = v
	case feserial.RegSCR:
		u.scr = v
	case feserial.RegMDR1:
		u.mdr1 = v
		u.kickLocked()
	}
}

func (u *UART) transmitLocked(b byte) {
	u.tx = append(u.tx, b)
	if u.out != nil {
		_, _ = u.out.Write([]byte{b})
	}
	if u.loopback || u.mcr&feserial.MCRLoop != 0 {
		u.receiveLocked(b)
	}
}

func (u *UART) receiveLocked(b byte) {
	if len(u.rx) >= u.depth {
		u.overrun = true
		u.dropped++
		return
	}
	u.rx = append(u.rx, b)
	u.kickLocked()
}

// rxPendingLocked reports whether the receive interrupt is asserted.
func (u *UART) rxPendingLocked() bool {
	return len(u.rx) > 0 &&
		u.ier&feserial.IERRxData != 0 &&
		u.mdr1 == feserial.MDR1Mode16x
}

func (u *UART) kickLocked() {
	if u.irq != nil && u.rxPendingLocked() {
		u.irq.kick()
	}
}

func (u *UART) rxPending() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rxPendingLocked()
}

func (u *UART) reads() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rxReads
}

func (u *UART) attach(l *line) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.irq = l
	u.kickLocked()
}

func (u *UART) detach() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.irq = nil
}

func (u *UART) remap() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mapped = true
}

func (u *UART) record(a Access) {
	if u.tracing {
		u.trace = append(u.trace, a)
	}
}

// Inject delivers p on the receive line, one byte after another. Bytes that
// do not fit the hardware FIFO are dropped and flag an overrun.
func (u *UART) Inject(p ...byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, b := range p {
		u.receiveLocked(b)
	}
}

// Settle waits until the receive FIFO is empty and no interrupt handler is
// running, or ctx is done.
func (u *UART) Settle(ctx context.Context) error {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for {
		u.mu.Lock()
		idle := len(u.rx) == 0 && (u.irq == nil || !u.irq.running())
		u.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// SetTxBusy makes the next polls LSR reads report THRE clear.
func (u *UART) SetTxBusy(polls int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.txBusy = polls
}

// SetTxStuck makes THRE never assert while stuck is true.
func (u *UART) SetTxStuck(stuck bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.txStuck = stuck
}

// Transmitted returns a copy of every byte written to TX.
func (u *UART) Transmitted() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.tx...)
}

// Trace returns a copy of the recorded register accesses.
func (u *UART) Trace() []Access {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Access(nil), u.trace...)
}

// ResetTrace discards recorded accesses.
func (u *UART) ResetTrace() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.trace = nil
}

// Divisor returns the value latched in DLL/DLM.
func (u *UART) Divisor() uint16 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return uint16(u.dlm)<<8 | uint16(u.dll)
}

// Peek returns a register value without read side effects. RX and LSR
// report their current contents.
func (u *UART) Peek(off feserial.Reg) byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch off {
	case feserial.RegRX:
		if u.lcr&feserial.LCRDLAB != 0 {
			return u.dll
		}
		if len(u.rx) > 0 {
			return u.rx[0]
		}
		return 0
	case feserial.RegLSR:
		var lsr byte
		if len(u.rx) > 0 {
			lsr |= feserial.LSRDataReady
		}
		if !u.txStuck && u.txBusy == 0 {
			lsr |= feserial.LSRTHRE | feserial.LSRTEMT
		}
		return lsr
	}
	return u.readRegister(off)
}

// Mapped reports whether the block is currently mapped.
func (u *UART) Mapped() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.mapped
}

// Faults returns the number of accesses made while unmapped.
func (u *UART) Faults() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.faults
}

// Dropped returns the number of received bytes lost to FIFO overrun.
func (u *UART) Dropped() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dropped
}
