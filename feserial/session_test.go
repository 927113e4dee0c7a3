package feserial_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"golang.org/x/exp/slices"

	"github.com/jangala-dev/feserial/feserial"
	"github.com/jangala-dev/feserial/sim"
)

func TestWrite_PollsStatusThenTransmits(t *testing.T) {
	r, _, _, u := newTestDevice(t)
	s := openSession(t, r, testID)

	if _, err := s.Control(feserial.OpResetCounter, 0); err != nil {
		t.Fatalf("reset counter: %v", err)
	}
	u.ResetTrace()
	u.SetTxBusy(2)

	n, err := s.Write([]byte{'F'})
	if err != nil || n != 1 {
		t.Fatalf("Write = %d,%v; want 1,nil", n, err)
	}

	ready := uint32(feserial.LSRTHRE | feserial.LSRTEMT)
	want := []sim.Access{
		{Reg: feserial.RegLSR, Val: 0},
		{Reg: feserial.RegLSR, Val: 0},
		{Reg: feserial.RegLSR, Val: ready},
		{Write: true, Reg: feserial.RegTX, Val: 'F'},
	}
	if got := u.Trace(); !reflect.DeepEqual(got, want) {
		t.Fatalf("register accesses:\n got %v\nwant %v", got, want)
	}
	if c, _ := s.Control(feserial.OpGetCounter, 0); c != 1 {
		t.Fatalf("counter = %d, want 1", c)
	}
}

func TestWrite_TranslatesNewline(t *testing.T) {
	r, _, _, u := newTestDevice(t)
	s := openSession(t, r, testID)

	n, err := s.Write([]byte("a\nb\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 4 {
		t.Fatalf("Write consumed %d bytes, want 4", n)
	}
	if got := string(u.Transmitted()); got != "a\n\rb\n\r" {
		t.Fatalf("transmitted %q", got)
	}
}

func TestCounter(t *testing.T) {
	r, _, _, _ := newTestDevice(t)
	s := openSession(t, r, testID)

	get := func() uint32 {
		t.Helper()
		v, err := s.Control(feserial.OpGetCounter, 0)
		if err != nil {
			t.Fatalf("get counter: %v", err)
		}
		return v
	}

	if _, err := s.Write([]byte("xyz")); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Control(feserial.OpResetCounter, 12345); err != nil || v != 0 {
		t.Fatalf("reset = %d,%v", v, err)
	}
	if got := get(); got != 0 {
		t.Fatalf("after reset: %d, want 0", got)
	}

	const n = 7
	for i := 0; i < n; i++ {
		if _, err := s.Write([]byte{'x'}); err != nil {
			t.Fatal(err)
		}
	}
	if got := get(); got != n {
		t.Fatalf("after %d writes: %d", n, got)
	}

	// The '\r' sent after a newline is not counted.
	_, _ = s.Control(feserial.OpResetCounter, 0)
	if _, err := s.Write([]byte("a\n")); err != nil {
		t.Fatal(err)
	}
	if got := get(); got != 2 {
		t.Fatalf("after \"a\\n\": %d, want 2", got)
	}
	_, _ = s.Write([]byte("\n"))
	if got := get(); got != 3 {
		t.Fatalf("after \"\\n\": %d, want 3", got)
	}
}

func TestCounter_StalledWrite(t *testing.T) {
	r, _, _, u := newTestDevice(t, feserial.WithTxSpinLimit(50))
	s := openSession(t, r, testID)
	_, _ = s.Control(feserial.OpResetCounter, 0)

	u.SetTxStuck(true)
	if _, err := s.Write([]byte("xy")); !errors.Is(err, feserial.ErrIOFault) {
		t.Fatalf("err=%v, want ErrIOFault", err)
	}
	if got, _ := s.Control(feserial.OpGetCounter, 0); got != 0 {
		t.Fatalf("counter after stalled write = %d, want 0", got)
	}
}

func TestComponentLogging(t *testing.T) {
	prev := feserial.GetLogLevel()
	feserial.SetLogLevel(slog.LevelDebug)
	defer feserial.SetLogLevel(prev)

	var buf bytes.Buffer
	r, _, _, u := newTestDevice(t,
		feserial.WithLogger(feserial.NewLogger(&buf, feserial.LogFormatJSON)),
		feserial.WithTxSpinLimit(10))
	s, err := r.Open(testID)
	if err != nil {
		t.Fatal(err)
	}
	u.SetTxStuck(true)
	_, _ = s.Write([]byte("z"))
	_ = s.Close()

	seen := map[string][]string{}
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		c, _ := rec["component"].(string)
		seen[c] = append(seen[c], rec["msg"].(string))
		if rec["device"] != testID {
			t.Fatalf("record without device attribute: %v", rec)
		}
	}
	want := map[string]string{"irq": "requested", "tx": "transmit stalled", "session": "closed"}
	for c, msg := range want {
		if !slices.Contains(seen[c], msg) {
			t.Errorf("component %s: got %v, want %q", c, seen[c], msg)
		}
	}
}

func TestCounter_SharedAcrossSessions(t *testing.T) {
	r, _, _, _ := newTestDevice(t)
	a := openSession(t, r, testID)
	b := openSession(t, r, testID)

	_, _ = a.Control(feserial.OpResetCounter, 0)
	_, _ = a.Write([]byte("ab"))
	if got, _ := b.Control(feserial.OpGetCounter, 0); got != 2 {
		t.Fatalf("counter via second session = %d, want 2", got)
	}
}

func TestControl_InvalidOp(t *testing.T) {
	r, _, _, _ := newTestDevice(t)
	s := openSession(t, r, testID)

	for _, op := range []feserial.Op{2, 3, 0xFFFFFFFF} {
		if _, err := s.Control(op, 0); !errors.Is(err, feserial.ErrInvalidOperation) {
			t.Fatalf("Control(%s): err=%v, want ErrInvalidOperation", op, err)
		}
	}
}

func TestWrite_Empty(t *testing.T) {
	r, _, _, u := newTestDevice(t)
	s := openSession(t, r, testID)

	if n, err := s.Write(nil); n != 0 || err != nil {
		t.Fatalf("Write(nil) = %d,%v", n, err)
	}
	if len(u.Transmitted()) != 0 {
		t.Fatal("empty write transmitted bytes")
	}
}

func TestWrite_TooLarge(t *testing.T) {
	r, _, _, u := newTestDevice(t, feserial.WithMaxTransfer(8))
	s := openSession(t, r, testID)

	if _, err := s.Write(bytes.Repeat([]byte{'x'}, 9)); !errors.Is(err, feserial.ErrResourceExhausted) {
		t.Fatalf("err=%v, want ErrResourceExhausted", err)
	}
	if len(u.Transmitted()) != 0 {
		t.Fatalf("transmitted %q before rejecting", u.Transmitted())
	}
	if n, err := s.Write(bytes.Repeat([]byte{'x'}, 8)); n != 8 || err != nil {
		t.Fatalf("Write at limit = %d,%v", n, err)
	}
}

func TestWrite_SpinLimit(t *testing.T) {
	r, _, _, u := newTestDevice(t, feserial.WithTxSpinLimit(50))
	s := openSession(t, r, testID)

	u.SetTxStuck(true)
	n, err := s.Write([]byte("ab"))
	if !errors.Is(err, feserial.ErrIOFault) {
		t.Fatalf("err=%v, want ErrIOFault", err)
	}
	if n != 0 {
		t.Fatalf("consumed %d bytes, want 0", n)
	}

	u.SetTxStuck(false)
	if _, err := s.Write([]byte("ab")); err != nil {
		t.Fatalf("Write after recovery: %v", err)
	}
}

func TestRead_Ordered(t *testing.T) {
	r, _, _, u := newTestDevice(t)
	s := openSession(t, r, testID)

	u.Inject('h', 'i')
	settle(t, u)

	buf := make([]byte, 4)
	for _, want := range []byte("hi") {
		n, err := s.Read(buf)
		if err != nil || n != 1 {
			t.Fatalf("Read = %d,%v; want 1,nil", n, err)
		}
		if buf[0] != want {
			t.Fatalf("read %q, want %q", buf[0], want)
		}
	}
}

func TestRead_EmptyBuffer(t *testing.T) {
	r, _, _, u := newTestDevice(t)
	s := openSession(t, r, testID)

	u.Inject('q')
	settle(t, u)

	if n, err := s.Read(nil); n != 0 || err != nil {
		t.Fatalf("Read(nil) = %d,%v", n, err)
	}
	buf := make([]byte, 1)
	if n, _ := s.Read(buf); n != 1 || buf[0] != 'q' {
		t.Fatalf("byte consumed by zero-length read")
	}
}

func TestRead_BlocksUntilInterrupt(t *testing.T) {
	r, _, _, u := newTestDevice(t)
	s := openSession(t, r, testID)

	got := make(chan byte, 1)
	go func() {
		buf := make([]byte, 1)
		if n, err := s.Read(buf); err == nil && n == 1 {
			got <- buf[0]
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Read returned with no data")
	case <-time.After(20 * time.Millisecond):
	}

	u.Inject('!')

	select {
	case b := <-got:
		if b != '!' {
			t.Fatalf("read %q", b)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Read")
	}
}

func TestRead_Cancelled(t *testing.T) {
	r, _, d, u := newTestDevice(t)
	s := openSession(t, r, testID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.ReadContext(ctx, make([]byte, 1))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, feserial.ErrInterrupted) {
			t.Fatalf("err=%v, want ErrInterrupted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for cancelled Read")
	}

	// Nothing was consumed: the next byte goes to the next reader.
	u.Inject('z')
	settle(t, u)
	if d.Buffered() != 1 {
		t.Fatalf("Buffered = %d, want 1", d.Buffered())
	}
	buf := make([]byte, 1)
	if n, err := s.Read(buf); n != 1 || err != nil || buf[0] != 'z' {
		t.Fatalf("Read = %d,%v,%q", n, err, buf[0])
	}
}

func TestRead_Deadline(t *testing.T) {
	r, _, _, _ := newTestDevice(t)
	s := openSession(t, r, testID)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	_, err := s.ReadContext(ctx, make([]byte, 1))
	if !errors.Is(err, feserial.ErrInterrupted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want ErrInterrupted wrapping DeadlineExceeded", err)
	}
}

func TestClose_UnblocksReader(t *testing.T) {
	r, _, _, _ := newTestDevice(t)
	s, err := r.Open(testID)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Read(make([]byte, 1))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	_ = s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, feserial.ErrInterrupted) || !errors.Is(err, feserial.ErrClosed) {
			t.Fatalf("err=%v, want ErrInterrupted wrapping ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for reader to unblock")
	}

	if _, err := s.Write([]byte("x")); !errors.Is(err, feserial.ErrClosed) {
		t.Fatalf("Write after Close: err=%v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRemove_UnblocksReaderAndInvalidatesSessions(t *testing.T) {
	r, p, _, _ := newTestDevice(t)
	s := openSession(t, r, testID)

	done := make(chan error, 1)
	go func() {
		_, err := s.Read(make([]byte, 1))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	if err := r.Remove(testID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, feserial.ErrInterrupted) || !errors.Is(err, feserial.ErrNoDevice) {
			t.Fatalf("err=%v, want ErrInterrupted wrapping ErrNoDevice", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for reader to unblock")
	}

	for name, call := range map[string]func() error{
		"write":   func() error { _, err := s.Write([]byte("x")); return err },
		"control": func() error { _, err := s.Control(feserial.OpGetCounter, 0); return err },
		"read":    func() error { _, err := s.Read(make([]byte, 1)); return err },
	} {
		if err := call(); !errors.Is(err, feserial.ErrNoDevice) {
			t.Errorf("%s after remove: err=%v, want ErrNoDevice", name, err)
		}
	}

	// A stale session does not reach a device probed again under the same name.
	if _, err := r.Probe(p, testResource()); err != nil {
		t.Fatalf("re-Probe: %v", err)
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, feserial.ErrNoDevice) {
		t.Fatalf("stale Write: err=%v, want ErrNoDevice", err)
	}
}

func TestOverflowThroughInterrupt(t *testing.T) {
	r, _, d, u := newTestDevice(t)
	s := openSession(t, r, testID)

	var in []byte
	for i := 0; i < feserial.DefaultRxCapacity+4; i++ {
		in = append(in, byte('A'+i))
	}
	u.Inject(in...)
	settle(t, u)

	if got := d.Buffered(); got != feserial.DefaultRxCapacity {
		t.Fatalf("Buffered = %d, want %d", got, feserial.DefaultRxCapacity)
	}
	if got := d.Overruns(); got != 4 {
		t.Fatalf("Overruns = %d, want 4", got)
	}
	buf := make([]byte, 1)
	for _, want := range in[4:] {
		if _, err := s.Read(buf); err != nil {
			t.Fatal(err)
		}
		if buf[0] != want {
			t.Fatalf("read %q, want %q", buf[0], want)
		}
	}
}

func TestLoopback_ConcurrentReaders(t *testing.T) {
	p := sim.NewPlatform(sim.WithLoopback(), sim.WithoutTrace())
	r := feserial.NewRegistry(quietLogger())
	if _, err := r.Probe(p, testResource()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })

	const readers = 3
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu  sync.Mutex
		got []byte
		wg  sync.WaitGroup
	)
	for i := 0; i < readers; i++ {
		s := openSession(t, r, testID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 1)
			for {
				if _, err := s.ReadContext(ctx, buf); err != nil {
					return
				}
				mu.Lock()
				got = append(got, buf[0])
				mu.Unlock()
			}
		}()
	}

	w := openSession(t, r, testID)
	const total = 200
	for i := 0; i < total; i++ {
		if _, err := w.Write([]byte{byte('a' + i%26)}); err != nil {
			t.Fatal(err)
		}
		// Stay within the receive buffer so nothing is dropped.
		for {
			mu.Lock()
			n := len(got)
			mu.Unlock()
			if i+1-n < feserial.DefaultRxCapacity/2 {
				break
			}
			select {
			case <-ctx.Done():
				t.Fatalf("stalled at %d/%d", n, total)
			case <-time.After(time.Millisecond):
			}
		}
	}

	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == total {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatalf("received %d of %d bytes", n, total)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	wg.Wait()

	counts := make(map[byte]int)
	for _, b := range got {
		counts[b]++
	}
	for i := 0; i < 26; i++ {
		want := total / 26
		if i < total%26 {
			want++
		}
		if counts[byte('a'+i)] != want {
			t.Fatalf("%q received %d times, want %d", 'a'+i, counts[byte('a'+i)], want)
		}
	}
}
