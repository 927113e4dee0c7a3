// Command feserial probes the UARTs of a board and talks to them: list
// devices, write and read bytes, drive the transmit counter, bridge a
// terminal, or run a loopback self-test.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jangala-dev/feserial/internal/cli"
)

var (
	flags cli.Flags

	rootCmd = &cobra.Command{
		Use:           "feserial",
		Short:         "OMAP UART driver tool",
		Long:          "Drive the OMAP 16550-compatible UARTs described by a board file, on hardware (/dev/mem and UIO) or simulated with --sim.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	flags.Bind(rootCmd)
}

// setup probes the board for a command and returns the environment. The
// caller must Close it.
func setup(cmd *cobra.Command) (*cli.Env, error) {
	return flags.Setup(cmd.ErrOrStderr())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
