package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/jangala-dev/feserial/feserial"
)

var (
	readOpts = struct {
		count   int
		timeout time.Duration
	}{}

	readCmd = &cobra.Command{
		Use:   "read <device>",
		Short: "Read bytes from a device",
		Long:  "Read bytes from a device and copy them to standard output. Each read blocks until a byte arrives or the timeout expires.",
		Args:  cobra.ExactArgs(1),
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

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if readOpts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, readOpts.timeout)
				defer cancel()
			}

			out := cmd.OutOrStdout()
			buf := make([]byte, 1)
			for i := 0; readOpts.count <= 0 || i < readOpts.count; i++ {
				if _, err := s.ReadContext(ctx, buf); err != nil {
					if errors.Is(err, feserial.ErrInterrupted) && errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					return err
				}
				if _, err := out.Write(buf); err != nil {
					return err
				}
			}
			return nil
		},
	}
)

func init() {
	readCmd.Flags().IntVarP(&readOpts.count, "count", "n", 1, "bytes to read (0 reads until timeout)")
	readCmd.Flags().DurationVarP(&readOpts.timeout, "timeout", "t", 0, "give up after this long (0 waits forever)")
	rootCmd.AddCommand(readCmd)
}
