package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	b := Default()
	if b.Name != "beaglebone-black" {
		t.Fatalf("board = %q", b.Name)
	}
	res := b.Resources()
	if len(res) != 2 {
		t.Fatalf("%d resources, want 2", len(res))
	}
	if res[0].ID() != "feserial-481a8000" || res[0].Base != 0x481a8000 || res[0].IRQ != 45 {
		t.Fatalf("first uart = %+v", res[0])
	}
	if res[1].ID() != "feserial-48024000" || res[1].ClockFrequency != 48000000 {
		t.Fatalf("second uart = %+v", res[1])
	}
	if got := b.UIO()[74]; got != "/dev/uio1" {
		t.Fatalf("uio for irq 74 = %q", got)
	}
	if len(b.Options()) != 3 { // rx capacity, max transfer, banner
		t.Fatalf("%d options, want 3", len(b.Options()))
	}
	if _, ok := b.Lookup("feserial-48024000"); !ok {
		t.Fatal("Lookup failed")
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":     "board: x\n",
		"no base":   "uarts:\n  - clock_frequency: 1\n",
		"no clock":  "uarts:\n  - base: 0x1000\n",
		"duplicate": "uarts:\n  - {base: 0x1000, clock_frequency: 1}\n  - {name: feserial-1000, base: 0x2000, clock_frequency: 1}\n",
		"syntax":    "uarts: [\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidBoard) {
			t.Errorf("%s: err=%v, want ErrInvalidBoard", name, err)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	doc := "board: test\nuarts:\n  - base: 0x44e09000\n    clock_frequency: 48000000\n    irq: 72\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if id := b.Resources()[0].ID(); id != "feserial-44e09000" {
		t.Fatalf("ID = %q", id)
	}
	if len(b.Options()) != 0 {
		t.Fatal("unexpected driver options")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: err=%v", err)
	}
	if b, err := Load(""); err != nil || b.Name != "beaglebone-black" {
		t.Fatalf("Load(\"\") = %v, %v", b, err)
	}
}
