package main

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/mattn/go-tty"
	"github.com/spf13/cobra"
)

// escapeRune ends a console session (Ctrl-]).
const escapeRune = 0x1d

var (
	consoleOpts = struct {
		tty string
	}{}

	consoleCmd = &cobra.Command{
		Use:   "console <device>",
		Short: "Bridge the terminal to a device",
		Long:  "Bridge the controlling terminal (in raw mode) to a device. Type Ctrl-] to exit.",
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

			var t *tty.TTY
			if consoleOpts.tty != "" {
				t, err = tty.OpenDevice(consoleOpts.tty)
			} else {
				t, err = tty.Open()
			}
			if err != nil {
				return fmt.Errorf("open terminal: %w", err)
			}
			defer t.Close()
			restore := t.MustRaw()
			defer restore()

			fmt.Fprintf(t.Output(), "connected to /dev/%s, Ctrl-] to exit\r\n", s.ID())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				buf := make([]byte, 1)
				for {
					if _, err := s.ReadContext(ctx, buf); err != nil {
						return
					}
					_, _ = t.Output().Write(buf)
				}
			}()

			var enc [utf8.UTFMax]byte
			for {
				r, err := t.ReadRune()
				if err != nil {
					return err
				}
				if r == escapeRune {
					fmt.Fprint(t.Output(), "\r\n")
					return nil
				}
				if r == '\r' {
					r = '\n'
				}
				n := utf8.EncodeRune(enc[:], r)
				if _, err := s.Write(enc[:n]); err != nil {
					return err
				}
			}
		},
	}
)

func init() {
	consoleCmd.Flags().StringVar(&consoleOpts.tty, "tty", "", "terminal device (default: the controlling terminal)")
	rootCmd.AddCommand(consoleCmd)
}
