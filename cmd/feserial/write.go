package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	writeOpts = struct {
		newline bool
		count   bool
	}{}

	writeCmd = &cobra.Command{
		Use:   "write <device> <text>...",
		Short: "Write text to a device",
		Long:  "Write text to a device. Every newline is followed by a carriage return on the wire.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			s, err := env.Open(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			text := strings.Join(args[1:], " ")
			if writeOpts.newline {
				text += "\n"
			}
			n, err := s.Write([]byte(text))
			if err != nil {
				return fmt.Errorf("wrote %d of %d bytes: %w", n, len(text), err)
			}
			if writeOpts.count {
				v, err := s.Control(opGet, 0)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", v)
			}
			return nil
		},
	}
)

func init() {
	writeCmd.Flags().BoolVarP(&writeOpts.newline, "newline", "n", true, "append a newline")
	writeCmd.Flags().BoolVar(&writeOpts.count, "count", false, "print the transmit counter afterwards")
	rootCmd.AddCommand(writeCmd)
}
