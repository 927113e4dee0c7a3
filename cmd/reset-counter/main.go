// Command reset-counter zeroes the transmit counter of every UART on the
// board, reporting each device as it goes. It stops at the first device it
// cannot open or reset.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jangala-dev/feserial/feserial"
	"github.com/jangala-dev/feserial/internal/cli"
)

var (
	flags cli.Flags

	rootCmd = &cobra.Command{
		Use:          "reset-counter [device]...",
		Short:        "Reset feserial transmit counters",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.Setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.Close()

			devs := args
			if len(devs) == 0 {
				for _, res := range env.Board.Resources() {
					devs = append(devs, res.ID())
				}
			}
			return resetAll(cmd.OutOrStdout(), env, devs)
		},
	}
)

func resetAll(out io.Writer, env *cli.Env, devs []string) error {
	for _, dev := range devs {
		s, err := env.Open(dev)
		if err != nil {
			return fmt.Errorf("unable to open /dev/%s: %w", dev, err)
		}
		_, err = s.Control(feserial.OpResetCounter, 0)
		_ = s.Close()
		if err != nil {
			return fmt.Errorf("unable to reset counter of /dev/%s: %w", s.ID(), err)
		}
		fmt.Fprintf(out, "Counter reset /dev/%s\n", s.ID())
	}
	return nil
}

func init() {
	flags.Bind(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
