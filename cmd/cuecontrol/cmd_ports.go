package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/dshills/cuecontrol/internal/transport"
)

// newPortsCmd creates the "cuecontrol ports" subcommand.
func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List MIDI input ports",
		Long:  "Lists the MIDI input ports of the system driver. Any part of a name can be\nused as midi.port in the configuration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drv, err := openMIDIDriver()
			if err != nil {
				return fmt.Errorf("opening MIDI driver: %w", err)
			}
			defer drv.Close()
			return printPorts(cmd.OutOrStdout(), drv)
		},
	}
}

func printPorts(w io.Writer, drv drivers.Driver) error {
	names, err := transport.MIDIPorts(drv)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "no MIDI input ports")
		return nil
	}
	for i, name := range names {
		fmt.Fprintf(w, "%d\t%s\n", i, name)
	}
	return nil
}
