package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dshills/cuecontrol/internal/app"
	"github.com/dshills/cuecontrol/internal/config"
	"github.com/dshills/cuecontrol/internal/control"
	"github.com/dshills/cuecontrol/internal/script"
)

// errCheckFailed is returned by check when a binding is invalid.
var errCheckFailed = errors.New("configuration has invalid bindings")

// loadController builds a controller without inputs and loads the bindings
// of cfg into it, compiling their scripts. The returned error lists every
// binding that failed. Call release when done.
func loadController(ctx context.Context, cfg *config.Config) (ctrl *control.Controller, release func(), err error) {
	ctx, cancel := context.WithCancel(ctx)
	engine := script.NewEngine(script.WithTimeout(cfg.Scripts.Timeout.Duration))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Serve(ctx)
	}()

	target := control.TargetFunc(func(control.Action, []int) error { return nil })
	ctrl = control.New(target, app.NewCodecs(), control.WithScripts(engine))
	release = func() {
		ctrl.Close()
		cancel()
		<-done
	}
	return ctrl, release, ctrl.Load(ctx, cfg.ControlBindings())
}

// newCheckCmd creates the "cuecontrol check" subcommand.
func newCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and its bindings",
		Long:  "Loads the configuration, parses every binding message and compiles every\nscript. Each invalid binding is reported; the command fails if any is found.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			ctrl, release, loadErr := loadController(cmd.Context(), cfg)
			defer release()

			out := cmd.OutOrStdout()
			errs := multierr.Errors(loadErr)
			for _, e := range errs {
				fmt.Fprintf(out, "error: %v\n", e)
			}
			source := cfg.Path()
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(out, "%s: %d bindings ok, %d invalid\n", source, ctrl.Len(), len(errs))
			if len(errs) > 0 {
				return errCheckFailed
			}
			return nil
		},
	}
}
