//go:build feserialdebug

package feserial_test

import (
	"testing"

	"github.com/jangala-dev/feserial/feserial"
)

func TestDebugStats(t *testing.T) {
	r, _, d, u := newTestDevice(t)
	s := openSession(t, r, testID)
	d.DebugReset()

	in := make([]byte, feserial.DefaultRxCapacity+2)
	for i := range in {
		in[i] = byte('a' + i)
	}
	u.Inject(in...)
	settle(t, u)

	st := d.DebugStats()
	if st.ISRCount != uint32(len(in)) {
		t.Fatalf("ISRCount = %d, want %d", st.ISRCount, len(in))
	}
	if st.RingPuts != feserial.DefaultRxCapacity || st.RingOverruns != 2 {
		t.Fatalf("puts=%d overruns=%d", st.RingPuts, st.RingOverruns)
	}
	if st.RingMaxUsed != feserial.DefaultRxCapacity {
		t.Fatalf("RingMaxUsed = %d", st.RingMaxUsed)
	}

	if _, err := s.Read(make([]byte, 1)); err != nil {
		t.Fatal(err)
	}
	regs := d.DebugRegs()
	if regs.LCR != feserial.LCRWordLen8 || regs.IER != feserial.IERRxData || regs.MDR1 != feserial.MDR1Mode16x {
		t.Fatalf("registers %+v", regs)
	}
}
