package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sigurn/crc8"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jangala-dev/feserial/feserial"
)

// A frame is frameData printable bytes and a CRC-8. Even when the CRC is a
// newline, the translated frame still fits the default receive buffer.
const frameData = 14

var frameCRC = crc8.MakeTable(crc8.CRC8)

var (
	selftestOpts = struct {
		frames  int
		timeout time.Duration
	}{}

	selftestCmd = &cobra.Command{
		Use:   "selftest [device]...",
		Short: "Loop CRC-checked frames through simulated UARTs",
		Long:  "Probe the board on simulated UARTs with TX looped back to RX, send CRC-8 checked frames through each device and verify what comes back.",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.Sim = true
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			// Let the probe banners come back before counting bytes.
			ctx, cancel := context.WithTimeout(context.Background(), selftestOpts.timeout)
			defer cancel()
			for _, res := range env.Board.Resources() {
				if u := env.Sim.UART(res.Base); u != nil {
					if err := u.Settle(ctx); err != nil {
						return err
					}
				}
			}

			devs := args
			if len(devs) == 0 {
				devs = env.Registry.Devices()
			}
			// Devices are independent; test them side by side and report in order.
			reports := make([]string, len(devs))
			errs := make([]error, len(devs))
			var g errgroup.Group
			for i, dev := range devs {
				i, dev := i, dev
				g.Go(func() error {
					s, err := env.Open(dev)
					if err != nil {
						errs[i] = err
						return nil
					}
					defer s.Close()
					reports[i], errs[i] = selftest(env.Registry, s)
					return nil
				})
			}
			_ = g.Wait()
			for _, r := range reports {
				if r != "" {
					fmt.Fprintln(cmd.OutOrStdout(), r)
				}
			}
			return errors.Join(errs...)
		},
	}
)

func frame(seq int) []byte {
	f := make([]byte, frameData+1)
	for i := 0; i < frameData; i++ {
		f[i] = byte(' ' + (seq*7+i)%95)
	}
	f[frameData] = crc8.Checksum(f[:frameData], frameCRC)
	return f
}

// readFrame reads one looped-back frame, dropping the carriage return the
// transmitter inserts after a newline CRC byte.
func readFrame(ctx context.Context, s *feserial.Session) ([]byte, error) {
	got := make([]byte, 0, frameData+1)
	buf := make([]byte, 1)
	for len(got) < frameData+1 {
		if _, err := s.ReadContext(ctx, buf); err != nil {
			return got, err
		}
		got = append(got, buf[0])
	}
	if got[frameData] == '\n' {
		if _, err := s.ReadContext(ctx, buf); err != nil {
			return got, err
		}
	}
	return got, nil
}

// selftest loops frames through the session's device and returns a one-line
// report.
func selftest(reg *feserial.Registry, s *feserial.Session) (string, error) {
	d, ok := reg.Lookup(s.ID())
	if !ok {
		return "", fmt.Errorf("%s: %w", s.ID(), feserial.ErrNoDevice)
	}

	ctx, cancel := context.WithTimeout(context.Background(), selftestOpts.timeout)
	defer cancel()

	// Discard whatever the probe banner left behind.
	for d.Buffered() > 0 {
		if _, err := s.ReadContext(ctx, make([]byte, 1)); err != nil {
			return "", err
		}
	}
	if _, err := s.Control(feserial.OpResetCounter, 0); err != nil {
		return "", err
	}

	var bad int
	for seq := 0; seq < selftestOpts.frames; seq++ {
		f := frame(seq)
		if _, err := s.Write(f); err != nil {
			return "", fmt.Errorf("%s: frame %d: %w", s.ID(), seq, err)
		}
		got, err := readFrame(ctx, s)
		if err != nil {
			return "", fmt.Errorf("%s: frame %d: %w", s.ID(), seq, err)
		}
		if crc8.Checksum(got[:frameData], frameCRC) != got[frameData] || string(got) != string(f) {
			bad++
		}
	}

	sent, err := s.Control(feserial.OpGetCounter, 0)
	if err != nil {
		return "", err
	}
	report := fmt.Sprintf("/dev/%s: %d frames, %d bad, %d bytes sent, %d overruns",
		s.ID(), selftestOpts.frames, bad, sent, d.Overruns())
	if bad > 0 || d.Overruns() > 0 {
		return report, fmt.Errorf("%s: selftest failed", s.ID())
	}
	return report, nil
}

func init() {
	selftestCmd.Flags().IntVarP(&selftestOpts.frames, "frames", "f", 100, "frames per device")
	selftestCmd.Flags().DurationVarP(&selftestOpts.timeout, "timeout", "t", 5*time.Second, "overall time limit per device")
	rootCmd.AddCommand(selftestCmd)
}
