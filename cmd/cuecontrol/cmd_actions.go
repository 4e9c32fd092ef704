package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/cuecontrol/internal/codec/midi"
	"github.com/dshills/cuecontrol/internal/control"
)

// newActionsCmd creates the "cuecontrol actions" subcommand.
func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the session actions, cue actions and MIDI message types bindings can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACTION\tARGS\tDESCRIPTION")
			for _, a := range control.Actions() {
				fmt.Fprintf(w, "%s\t%d\t%s\n", a, a.Arity(), a.Label())
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "CUE ACTION\tARGS\tDESCRIPTION")
			for _, a := range control.CueActions() {
				fmt.Fprintf(w, "%s\t0\t%s\n", a, a.Label())
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "MIDI TYPE\tFIELDS\t")
			for _, t := range midi.Types() {
				n, _ := midi.Arity(t)
				fmt.Fprintf(w, "%s\t%d\t\n", t, n)
			}
			return w.Flush()
		},
	}
}
