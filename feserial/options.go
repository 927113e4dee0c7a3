// feserial/options.go

package feserial

import "log/slog"

// DefaultMaxTransfer is the largest payload a single Write will stage.
const DefaultMaxTransfer = 4096

// Option configures a device at probe time.
type Option func(*options)

type options struct {
	log         *slog.Logger
	rxCapacity  int
	txSpinLimit int
	maxTransfer int
	banner      []byte
}

func buildOptions(opts []Option) options {
	o := options{
		rxCapacity:  DefaultRxCapacity,
		maxTransfer: DefaultMaxTransfer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used by the device. The component and device
// attributes are added automatically.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRxCapacity sets the receive buffer size in bytes.
func WithRxCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.rxCapacity = n
		}
	}
}

// WithTxSpinLimit bounds the number of status polls the transmitter makes
// while waiting for THRE. Zero, the default, polls forever: a transmitter
// that never becomes ready hangs the writer.
func WithTxSpinLimit(polls int) Option {
	return func(o *options) { o.txSpinLimit = polls }
}

// WithMaxTransfer sets the largest payload a single Write will stage.
func WithMaxTransfer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTransfer = n
		}
	}
}

// WithBanner transmits b during probe, after interrupts are enabled and
// before the device is registered. The board bring-up writes "F".
func WithBanner(b ...byte) Option {
	return func(o *options) { o.banner = append([]byte(nil), b...) }
}
