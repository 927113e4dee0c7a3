// feserial/session.go

package feserial

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

// Op is a control operation identifier.
type Op uint32

// Control operations.
const (
	OpResetCounter Op = 0 // zero the transmit counter; arg ignored
	OpGetCounter   Op = 1 // return the transmit counter
)

// String returns a human-readable operation name.
func (op Op) String() string {
	switch op {
	case OpResetCounter:
		return "reset-counter"
	case OpGetCounter:
		return "get-counter"
	default:
		return "op(" + strconv.FormatUint(uint64(op), 10) + ")"
	}
}

// Session is an open handle on a registered device. All sessions of a
// device share its single receive buffer: concurrent readers race for bytes
// and each byte goes to exactly one of them.
//
// A Session is safe for concurrent use.
type Session struct {
	reg *Registry
	id  string
	gen uint64
	log *slog.Logger

	ctx       context.Context // done when the session closes or the device goes away
	cancel    context.CancelCauseFunc
	closeOnce sync.Once
}

func newSession(r *Registry, d *Device) *Session {
	ctx, cancel := context.WithCancelCause(d.ctx)
	return &Session{reg: r, id: d.name, gen: d.gen, log: d.sessLog, ctx: ctx, cancel: cancel}
}

// ID returns the identity of the session's device.
func (s *Session) ID() string { return s.id }

func (s *Session) device() (*Device, error) {
	if context.Cause(s.ctx) != nil {
		return nil, fmt.Errorf("%s: %w", s.id, context.Cause(s.ctx))
	}
	return s.reg.resolve(s.id, s.gen)
}

// ReadContext blocks until a received byte is available and copies it into
// p[0]. It never returns more than one byte. If len(p) is zero it returns
// immediately. If ctx is cancelled, the session is closed or the device is
// removed while waiting, it returns an error wrapping ErrInterrupted without
// consuming a byte.
func (s *Session) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	d, err := s.device()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(s.ctx, func() { cancel(context.Cause(s.ctx)) })
	defer stop()

	if d.rx.Used() == 0 {
		d.dbgReadWait()
	}
	b, err := d.rx.Pop(ctx)
	if err != nil {
		d.dbgInterrupted()
		return 0, err
	}
	p[0] = b
	return 1, nil
}

// Read implements io.Reader with the semantics of ReadContext and no
// deadline of its own.
func (s *Session) Read(p []byte) (int, error) {
	return s.ReadContext(context.Background(), p)
}

// Write transmits p, inserting '\r' after each '\n', and returns the number
// of bytes of p consumed. A payload larger than the device's transfer limit
// fails with ErrResourceExhausted before anything is sent.
func (s *Session) Write(p []byte) (int, error) {
	d, err := s.device()
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > d.maxTransfer {
		return 0, fmt.Errorf("%s: write of %d bytes exceeds %d: %w", s.id, len(p), d.maxTransfer, ErrResourceExhausted)
	}
	staged := make([]byte, len(p))
	copy(staged, p)

	if err := d.acquire(); err != nil {
		return 0, err
	}
	defer d.release()
	return d.transmit(staged)
}

// Control performs op. OpGetCounter returns the transmit counter;
// OpResetCounter zeroes it and returns 0. Any other op fails with
// ErrInvalidOperation.
func (s *Session) Control(op Op, arg uintptr) (uint32, error) {
	d, err := s.device()
	if err != nil {
		return 0, err
	}
	switch op {
	case OpResetCounter:
		d.ResetTxCount()
		return 0, nil
	case OpGetCounter:
		return d.TxCount(), nil
	default:
		return 0, fmt.Errorf("%s: %s: %w", s.id, op, ErrInvalidOperation)
	}
}

// Close ends the session and unblocks its pending reads. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel(fmt.Errorf("%s: %w", s.id, ErrClosed))
		s.log.Debug("closed", "gen", s.gen)
	})
	return nil
}
