// Package config loads board descriptions: which UARTs exist, where their
// registers live, their clock and interrupt lines, and driver tuning.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/jangala-dev/feserial/feserial"
)

//go:embed boards/beaglebone.yaml
var rawDefault []byte

// ErrInvalidBoard is returned for a board description that cannot be used.
var ErrInvalidBoard = errors.New("invalid board description")

// Board is one board description.
type Board struct {
	Name   string `yaml:"board"`
	Driver Driver `yaml:"driver"`
	UARTs  []UART `yaml:"uarts"`
}

// Driver holds probe options shared by every UART of a board.
type Driver struct {
	RxCapacity  int    `yaml:"rx_capacity"`
	TxSpinLimit int    `yaml:"tx_spin_limit"`
	MaxTransfer int    `yaml:"max_transfer"`
	Banner      string `yaml:"banner"`
}

// UART describes one serial port.
type UART struct {
	Name           string `yaml:"name"`
	Base           uint64 `yaml:"base"`
	Size           uint64 `yaml:"size"`
	ClockFrequency uint32 `yaml:"clock_frequency"`
	IRQ            int    `yaml:"irq"`
	UIO            string `yaml:"uio"`
}

// Default returns the embedded BeagleBone Black description.
func Default() *Board {
	b, err := Parse(rawDefault)
	if err != nil {
		panic(err)
	}
	return b
}

// Load reads a board description from path. An empty path selects Default.
func Load(path string) (*Board, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Parse decodes and validates a board description.
func Parse(data []byte) (*Board, error) {
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBoard, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks that every UART is addressable and uniquely named.
func (b *Board) Validate() error {
	if len(b.UARTs) == 0 {
		return fmt.Errorf("%w: no uarts", ErrInvalidBoard)
	}
	var seen []string
	for i, u := range b.UARTs {
		id := u.resource().ID()
		switch {
		case u.Base == 0:
			return fmt.Errorf("%w: uart %d: no base address", ErrInvalidBoard, i)
		case u.ClockFrequency == 0:
			return fmt.Errorf("%w: %s: no clock_frequency", ErrInvalidBoard, id)
		case slices.Contains(seen, id):
			return fmt.Errorf("%w: %s: duplicate name", ErrInvalidBoard, id)
		}
		seen = append(seen, id)
	}
	return nil
}

func (u UART) resource() feserial.Resource {
	return feserial.Resource{
		Name:           u.Name,
		Base:           uintptr(u.Base),
		Size:           uintptr(u.Size),
		ClockFrequency: u.ClockFrequency,
		IRQ:            u.IRQ,
	}
}

// Resources returns the UARTs as probe resources.
func (b *Board) Resources() []feserial.Resource {
	out := make([]feserial.Resource, len(b.UARTs))
	for i, u := range b.UARTs {
		out[i] = u.resource()
	}
	return out
}

// UIO maps interrupt lines to their UIO device paths.
func (b *Board) UIO() map[int]string {
	m := make(map[int]string)
	for _, u := range b.UARTs {
		if u.UIO != "" {
			m[u.IRQ] = u.UIO
		}
	}
	return m
}

// Options returns the driver probe options of the board.
func (b *Board) Options() []feserial.Option {
	var opts []feserial.Option
	if b.Driver.RxCapacity > 0 {
		opts = append(opts, feserial.WithRxCapacity(b.Driver.RxCapacity))
	}
	if b.Driver.TxSpinLimit > 0 {
		opts = append(opts, feserial.WithTxSpinLimit(b.Driver.TxSpinLimit))
	}
	if b.Driver.MaxTransfer > 0 {
		opts = append(opts, feserial.WithMaxTransfer(b.Driver.MaxTransfer))
	}
	if b.Driver.Banner != "" {
		opts = append(opts, feserial.WithBanner([]byte(b.Driver.Banner)...))
	}
	return opts
}

// Lookup returns the UART named id.
func (b *Board) Lookup(id string) (UART, bool) {
	i := slices.IndexFunc(b.UARTs, func(u UART) bool { return u.resource().ID() == id })
	if i < 0 {
		return UART{}, false
	}
	return b.UARTs[i], true
}
