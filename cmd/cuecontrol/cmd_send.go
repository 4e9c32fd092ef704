package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
	"github.com/spf13/cobra"

	"github.com/dshills/cuecontrol/internal/codec"
	osccodec "github.com/dshills/cuecontrol/internal/codec/osc"
	"github.com/dshills/cuecontrol/internal/control"
)

// newSendCmd creates the "cuecontrol send" subcommand.
func newSendCmd(flags *globalFlags) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one OSC message, e.g. to test a running cuecontrol",
		Long: "Sends a concrete OSC message written in binding syntax, for example\n" +
			"  cuecontrol send \"/cue/go, i, 3\"\n" +
			"The message goes to --to, or to the configured osc.listen address.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				cfg, err := flags.loadConfig()
				if err != nil {
					return err
				}
				to = cfg.OSC.Listen
			}
			msg, err := encodeOSC(args[0])
			if err != nil {
				return err
			}
			host, portStr, err := net.SplitHostPort(to)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("send: bad port %q", portStr)
			}
			if host == "" || host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			if err := osc.NewClient(host, port).Send(msg); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", args[0], net.JoinHostPort(host, portStr))
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "host:port to send to")
	return cmd
}

// encodeOSC parses a concrete message in binding syntax.
func encodeOSC(message string) (*osc.Message, error) {
	id, m, err := codec.Parse(osccodec.New(), message)
	if err != nil {
		return nil, err
	}
	if m.Wildcards() > 0 {
		return nil, fmt.Errorf("%w: %q", control.ErrNotConcrete, message)
	}
	values := make([]any, m.Len())
	for i, cell := range m {
		values[i] = cell.Value()
	}
	return osccodec.Encode(id, values...)
}
