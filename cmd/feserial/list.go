package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List probed devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-22s %-4s %-8s %-8s %-9s %-9s %s\n",
			"DEVICE", "IRQ", "DIVISOR", "TXCOUNT", "BUFFERED", "OVERRUNS", "STATE")
		for _, id := range env.Registry.Devices() {
			d, ok := env.Registry.Lookup(id)
			if !ok {
				continue
			}
			fmt.Fprintf(out, "/dev/%-17s %-4d %-8d %-8d %-9d %-9d %s\n",
				id, d.IRQ(), d.Divisor(), d.TxCount(), d.Buffered(), d.Overruns(), d.State())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
