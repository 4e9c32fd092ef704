package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dshills/cuecontrol/internal/control"
)

// newRoutesCmd creates the "cuecontrol routes" subcommand.
func newRoutesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the dispatch table built from the bindings",
		Long:  "Prints one line per registered message pattern in lookup order, with the\nbindings it triggers. Invalid bindings are skipped with a warning.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			ctrl, release, loadErr := loadController(cmd.Context(), cfg)
			defer release()
			for _, e := range multierr.Errors(loadErr) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROTOCOL\tMESSAGE\tTRIGGERS")
			for _, r := range ctrl.Routes() {
				triggers := make([]string, len(r.Bindings))
				for i, b := range r.Bindings {
					triggers[i] = describe(b)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Protocol, r.Wire, strings.Join(triggers, ", "))
			}
			return w.Flush()
		},
	}
}

func describe(b control.Binding) string {
	switch {
	case b.IsCue():
		action, _ := control.ParseCueAction(b.Action)
		return "cue " + strings.TrimSpace(b.Cue) + " " + action.String()
	case !b.IsScripted():
		return b.Action
	case b.Name != "":
		return "script " + b.Name
	default:
		return "script"
	}
}
