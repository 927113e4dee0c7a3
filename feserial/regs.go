// feserial/regs.go

package feserial

import "sync"

// Reg is a word index into the UART register block. Backends multiply it by
// RegStride to get the byte offset.
type Reg uint32

// RegStride is the byte distance between consecutive registers.
const RegStride = 4

// Register offsets of the OMAP 16550-compatible UART. Several share an index
// and are selected by access direction or by LCR.DLAB.
const (
	RegRX   Reg = 0 // receive data (read, DLAB=0)
	RegTX   Reg = 0 // transmit data (write, DLAB=0)
	RegDLL  Reg = 0 // divisor latch low (DLAB=1)
	RegIER  Reg = 1 // interrupt enable (DLAB=0)
	RegDLM  Reg = 1 // divisor latch high (DLAB=1)
	RegIIR  Reg = 2 // interrupt identification (read)
	RegFCR  Reg = 2 // FIFO control (write)
	RegLCR  Reg = 3 // line control
	RegMCR  Reg = 4 // modem control
	RegLSR  Reg = 5 // line status
	RegMSR  Reg = 6 // modem status
	RegSCR  Reg = 7 // scratch
	RegMDR1 Reg = 8 // OMAP mode definition
)

// Register bits.
const (
	LSRDataReady = 0x01 // a received byte is waiting in RX
	LSROverrun   = 0x02 // hardware FIFO overran
	LSRTHRE      = 0x20 // transmit holding register empty
	LSRTEMT      = 0x40 // transmitter idle

	LCRWordLen8 = 0x03 // 8 data bits, 1 stop bit, no parity
	LCRDLAB     = 0x80 // divisor latch access

	IERRxData = 0x01 // receive-data-available interrupt

	FCREnableFIFO = 0x01
	FCRClearRx    = 0x02
	FCRClearTx    = 0x04

	MCRLoop = 0x10

	MDR1Disable = 0x07 // UART disabled, configuration allowed
	MDR1Mode16x = 0x00 // UART 16x mode
)

// Bus is one mapped register block. Each call is a single 32-bit access.
// Implementations need not be safe for concurrent use; Regs serialises
// everything except the interrupt handler's read of RegRX.
type Bus interface {
	Load(off Reg) uint32
	Store(off Reg, v uint32)
	// Unmap releases the mapping. The Bus must not be used afterwards.
	Unmap() error
}

// Regs is the lock-protected register interface of a device.
//
// Go has no local interrupt masking, so the interrupt handler never takes mu:
// it reads RegRX through readData, which nothing else touches while the
// device is running.
type Regs struct {
	mu  sync.Mutex
	bus Bus
}

// Step is one register write of a configuration sequence.
type Step struct {
	Off Reg
	Val uint32
}

func newRegs(bus Bus) *Regs {
	return &Regs{bus: bus}
}

// Read returns the value of register off.
func (r *Regs) Read(off Reg) uint32 {
	r.mu.Lock()
	v := r.bus.Load(off)
	r.mu.Unlock()
	return v
}

// Write stores v in register off.
func (r *Regs) Write(v uint32, off Reg) {
	r.mu.Lock()
	r.bus.Store(off, v)
	r.mu.Unlock()
}

// Apply performs steps in order while holding the register lock, so that no
// other locked access observes a partially applied sequence (for example a
// transmit landing in DLL while DLAB is set).
func (r *Regs) Apply(steps ...Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range steps {
		r.bus.Store(s.Off, s.Val)
	}
}

// readData reads one received byte, bypassing the lock. Reading RX clears
// the hardware data-ready condition.
func (r *Regs) readData() byte {
	return byte(r.bus.Load(RegRX) & 0xFF)
}
