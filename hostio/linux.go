//go:build linux

package hostio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jangala-dev/feserial/feserial"
)

// Platform implements feserial.Platform on Linux.
type Platform struct {
	mu    sync.Mutex
	opts  options
	lines map[int]*uioLine
}

// New returns a Linux platform.
func New(opts ...Option) *Platform {
	return &Platform{opts: buildOptions(opts), lines: make(map[int]*uioLine)}
}

// Map maps the register block of res. The mapping is page aligned; the
// returned Bus addresses registers relative to res.Base.
func (p *Platform) Map(res feserial.Resource) (feserial.Bus, error) {
	size := res.Size
	if size == 0 {
		size = defaultBlockSize
	}
	page := uintptr(unix.Getpagesize())
	start := res.Base &^ (page - 1)
	off := res.Base - start
	length := (off + size + page - 1) &^ (page - 1)

	fd, err := unix.Open(p.opts.mem, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("hostio: open %s: %w", p.opts.mem, err)
	}
	// The mapping outlives the descriptor.
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, int64(start), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("hostio: mmap %#x+%#x: %w", start, length, err)
	}
	return &mmioBus{mem: mem, off: off, size: size}, nil
}

// RequestIRQ starts a thread that waits on the UIO device routed to irq and
// calls h once per interrupt.
func (p *Platform) RequestIRQ(irq int, h func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	path, ok := p.opts.uio[irq]
	if !ok {
		return fmt.Errorf("hostio: irq %d: no uio device", irq)
	}
	if _, busy := p.lines[irq]; busy {
		return fmt.Errorf("hostio: irq %d: already requested", irq)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("hostio: irq %d: %w", irq, err)
	}
	l := &uioLine{
		irq:     irq,
		f:       f,
		handler: h,
		done:    make(chan struct{}),
		log:     p.opts.log.With("irq", irq, "uio", path),
	}
	if err := l.unmask(); err != nil {
		_ = f.Close()
		return fmt.Errorf("hostio: irq %d: unmask: %w", irq, err)
	}
	p.lines[irq] = l
	go l.run()
	return nil
}

// FreeIRQ stops the interrupt thread of irq and waits for it to exit.
func (p *Platform) FreeIRQ(irq int) error {
	p.mu.Lock()
	l, ok := p.lines[irq]
	delete(p.lines, irq)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("hostio: irq %d: not requested", irq)
	}
	err := l.f.Close()
	<-l.done
	return err
}

// mmioBus is a mapped register window. Each access is a single aligned
// 32-bit load or store.
type mmioBus struct {
	mem  []byte
	off  uintptr
	size uintptr
}

func (b *mmioBus) reg(off feserial.Reg) *uint32 {
	o := b.off + uintptr(off)*feserial.RegStride
	if o+4 > b.off+b.size {
		panic(fmt.Sprintf("hostio: register %d outside mapped block", off))
	}
	return (*uint32)(unsafe.Pointer(&b.mem[o]))
}

func (b *mmioBus) Load(off feserial.Reg) uint32 {
	return atomic.LoadUint32(b.reg(off))
}

func (b *mmioBus) Store(off feserial.Reg, v uint32) {
	atomic.StoreUint32(b.reg(off), v)
}

func (b *mmioBus) Unmap() error {
	if b.mem == nil {
		return fmt.Errorf("hostio: unmap of unmapped block")
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}

// uioLine is the interrupt thread of one UIO device. A read returns the
// interrupt count once the line fires; writing 1 re-enables it.
type uioLine struct {
	irq     int
	f       *os.File
	handler func()
	done    chan struct{}
	log     *slog.Logger
}

var uioEnable = binary.NativeEndian.AppendUint32(nil, 1)

func (l *uioLine) unmask() error {
	_, err := l.f.Write(uioEnable)
	return err
}

func (l *uioLine) run() {
	defer close(l.done)
	var buf [4]byte
	var last uint32
	for {
		if _, err := io.ReadFull(l.f, buf[:]); err != nil {
			if !isClosed(err) {
				l.log.Error("uio read", "err", err)
			}
			return
		}
		n := binary.NativeEndian.Uint32(buf[:])
		if last != 0 && n-last > 1 {
			l.log.Debug("missed interrupts", "count", n-last-1)
		}
		last = n

		l.handler()

		if err := l.unmask(); err != nil {
			if !isClosed(err) {
				l.log.Error("uio unmask", "err", err)
			}
			return
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF)
}
