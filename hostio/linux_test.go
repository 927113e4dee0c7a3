//go:build linux

package hostio

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/jangala-dev/feserial/feserial"
)

// A regular file stands in for /dev/mem: MAP_SHARED stores land in the file.
func TestMap_LoadStore(t *testing.T) {
	page := unix.Getpagesize()
	path := filepath.Join(t.TempDir(), "mem")
	if err := os.WriteFile(path, make([]byte, 2*page), 0o600); err != nil {
		t.Fatal(err)
	}

	p := New(WithMemDevice(path))
	res := feserial.Resource{Base: uintptr(page) + 0x100, Size: 0x40, ClockFrequency: 48000000, IRQ: 1}
	bus, err := p.Map(res)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	bus.Store(feserial.RegLCR, 0x83)
	bus.Store(feserial.RegMDR1, 0x07)
	if got := bus.Load(feserial.RegLCR); got != 0x83 {
		t.Fatalf("LCR = %#x", got)
	}
	if err := bus.Unmap(); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if err := bus.Unmap(); err == nil {
		t.Fatal("double Unmap succeeded")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	at := func(r feserial.Reg) uint32 {
		o := page + 0x100 + int(r)*feserial.RegStride
		return binary.NativeEndian.Uint32(raw[o:])
	}
	if at(feserial.RegLCR) != 0x83 || at(feserial.RegMDR1) != 0x07 {
		t.Fatalf("file contents LCR=%#x MDR1=%#x", at(feserial.RegLCR), at(feserial.RegMDR1))
	}
}

func TestMap_MissingDevice(t *testing.T) {
	p := New(WithMemDevice(filepath.Join(t.TempDir(), "absent")))
	_, err := p.Map(feserial.Resource{Base: 0x1000, ClockFrequency: 1})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v, want ErrNotExist", err)
	}
}

func TestRequestIRQ_Unrouted(t *testing.T) {
	p := New()
	if err := p.RequestIRQ(45, func() {}); err == nil {
		t.Fatal("RequestIRQ without a uio route succeeded")
	}
	if err := p.FreeIRQ(45); err == nil {
		t.Fatal("FreeIRQ of unrequested line succeeded")
	}
}
