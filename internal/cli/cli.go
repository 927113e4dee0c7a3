// Package cli builds the driver stack shared by the feserial commands: board
// description, platform backend, logging and the probed registry.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jangala-dev/feserial/config"
	"github.com/jangala-dev/feserial/feserial"
	"github.com/jangala-dev/feserial/hostio"
	"github.com/jangala-dev/feserial/sim"
)

// Flags are the persistent flags common to every command.
type Flags struct {
	Config    string
	Sim       bool
	LogLevel  string
	LogFormat string
}

// Bind registers f on cmd as persistent flags.
func (f *Flags) Bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.Config, "config", "c", "", "board description (default: embedded beaglebone-black)")
	cmd.PersistentFlags().BoolVar(&f.Sim, "sim", false, "run against simulated UARTs with TX looped back to RX")
	cmd.PersistentFlags().StringVar(&f.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&f.LogFormat, "log-format", "text", "log format (text, json)")
}

// Env is a probed driver stack.
type Env struct {
	Board    *config.Board
	Registry *feserial.Registry
	Sim      *sim.Platform // nil unless running simulated
	Log      *slog.Logger
}

// Setup configures logging, loads the board and probes every UART on it.
// Devices that fail to probe are logged and skipped; Setup fails only if none
// came up.
func (f *Flags) Setup(stderr io.Writer) (*Env, error) {
	log, err := f.logger(stderr)
	if err != nil {
		return nil, err
	}
	board, err := config.Load(f.Config)
	if err != nil {
		return nil, err
	}

	var p feserial.Platform
	env := &Env{Board: board, Log: log}
	if f.Sim {
		env.Sim = sim.NewPlatform(sim.WithLoopback(), sim.WithoutTrace())
		p = env.Sim
	} else {
		var opts []hostio.Option
		for irq, path := range board.UIO() {
			opts = append(opts, hostio.WithUIO(irq, path))
		}
		p = hostio.New(append(opts, hostio.WithLogger(log))...)
	}

	env.Registry = feserial.NewRegistry(log)
	devs, err := env.Registry.ProbeAll(p, board.Resources(), board.Options()...)
	if err != nil {
		log.Warn("probe", "err", err)
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("%s: no device came up: %w", board.Name, err)
	}
	return env, nil
}

func (f *Flags) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.LogLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	feserial.SetLogLevel(level)

	var format feserial.LogFormat
	switch strings.ToLower(f.LogFormat) {
	case "text", "":
		format = feserial.LogFormatText
	case "json":
		format = feserial.LogFormatJSON
	default:
		return nil, fmt.Errorf("--log-format: unknown format %q", f.LogFormat)
	}
	if w == nil {
		w = os.Stderr
	}
	l := feserial.NewLogger(w, format)
	feserial.SetLogger(l)
	return l, nil
}

// Open starts a session on dev. A leading "/dev/" is accepted.
func (e *Env) Open(dev string) (*feserial.Session, error) {
	return e.Registry.Open(strings.TrimPrefix(dev, "/dev/"))
}

// Close removes every device.
func (e *Env) Close() error {
	return e.Registry.Close()
}
