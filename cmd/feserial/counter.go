package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jangala-dev/feserial/feserial"
)

const (
	opReset = feserial.OpResetCounter
	opGet   = feserial.OpGetCounter
)

var (
	counterCmd = &cobra.Command{
		Use:   "counter",
		Short: "Query or reset the transmit byte counter",
	}

	counterResetCmd = &cobra.Command{
		Use:   "reset <device>...",
		Short: "Zero the transmit counter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachDevice(cmd, args, opReset, func(dev string, _ uint32) {
				fmt.Fprintf(cmd.OutOrStdout(), "Counter reset /dev/%s\n", dev)
			})
		},
	}

	counterGetCmd = &cobra.Command{
		Use:   "get <device>...",
		Short: "Print the transmit counter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachDevice(cmd, args, opGet, func(dev string, v uint32) {
				fmt.Fprintf(cmd.OutOrStdout(), "/dev/%s %d\n", dev, v)
			})
		},
	}
)

// eachDevice performs op on every named device in turn and stops at the
// first failure.
func eachDevice(cmd *cobra.Command, devs []string, op feserial.Op, report func(string, uint32)) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	for _, dev := range devs {
		s, err := env.Open(dev)
		if err != nil {
			return fmt.Errorf("unable to open %s: %w", dev, err)
		}
		v, err := s.Control(op, 0)
		_ = s.Close()
		if err != nil {
			return fmt.Errorf("%s on %s: %w", op, dev, err)
		}
		report(s.ID(), v)
	}
	return nil
}

func init() {
	counterCmd.AddCommand(counterResetCmd, counterGetCmd)
	rootCmd.AddCommand(counterCmd)
}
