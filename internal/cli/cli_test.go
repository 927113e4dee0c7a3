package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jangala-dev/feserial/feserial"
)

func TestSetup_Sim(t *testing.T) {
	var logs bytes.Buffer
	f := Flags{Sim: true, LogLevel: "info", LogFormat: "json"}
	env, err := f.Setup(&logs)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer env.Close()

	if got := env.Registry.Devices(); len(got) != 2 {
		t.Fatalf("Devices = %v", got)
	}
	if !strings.Contains(logs.String(), `"msg":"probed"`) {
		t.Fatalf("no probe log in %q", logs.String())
	}

	s, err := env.Open("/dev/feserial-481a8000")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// The probe banner comes back first on the loopback.
	buf := make([]byte, 1)
	var got []byte
	for len(got) < 2 {
		if _, err := s.ReadContext(ctx, buf); err != nil {
			t.Fatalf("ReadContext: %v", err)
		}
		got = append(got, buf[0])
	}
	if string(got) != "Fx" {
		t.Fatalf("read %q, want %q", got, "Fx")
	}
}

func TestSetup_BadFlags(t *testing.T) {
	for _, f := range []Flags{
		{Sim: true, LogLevel: "loud"},
		{Sim: true, LogLevel: "warn", LogFormat: "xml"},
	} {
		if _, err := f.Setup(&bytes.Buffer{}); err == nil {
			t.Errorf("Setup(%+v) succeeded", f)
		}
	}
}

func TestSetup_NoDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	doc := "board: broken\nuarts:\n  - base: 0x1000\n    clock_frequency: 1000\n    irq: 1\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	f := Flags{Config: path, Sim: true, LogLevel: "error"}
	_, err := f.Setup(&bytes.Buffer{})
	if !errors.Is(err, feserial.ErrHardwareUnavailable) {
		t.Fatalf("err=%v, want ErrHardwareUnavailable", err)
	}
}
