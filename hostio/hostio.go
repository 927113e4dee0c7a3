// Package hostio runs the feserial driver against real hardware from Linux
// user space: register blocks are mapped from /dev/mem and receive
// interrupts are taken from UIO devices.
package hostio

import "log/slog"

// DefaultMemDevice is the physical memory device mapped for register access.
const DefaultMemDevice = "/dev/mem"

// defaultBlockSize is mapped when a resource does not give its size.
const defaultBlockSize = 0x1000

// Option configures a Platform.
type Option func(*options)

type options struct {
	mem string
	uio map[int]string
	log *slog.Logger
}

func buildOptions(opts []Option) options {
	o := options{mem: DefaultMemDevice, uio: make(map[int]string)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o
}

// WithMemDevice maps registers from path instead of /dev/mem.
func WithMemDevice(path string) Option {
	return func(o *options) { o.mem = path }
}

// WithUIO routes interrupt line irq to the UIO device at path.
func WithUIO(irq int, path string) Option {
	return func(o *options) { o.uio[irq] = path }
}

// WithLogger sets the logger for interrupt-thread diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}
