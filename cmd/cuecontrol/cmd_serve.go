package main

import (
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"

	"github.com/dshills/cuecontrol/internal/app"
	"github.com/dshills/cuecontrol/internal/logging"
)

// newServeCmd creates the "cuecontrol serve" subcommand.
func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		watch  bool
		noMIDI bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for input and perform bound actions",
		Long:  "Starts every enabled input, loads the bindings and performs their actions\nuntil interrupted. With --watch the bindings are reloaded when the\nconfiguration file or one of its script files changes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			logging.SetDefault(logger)

			opts := app.Options{
				Config:  cfg,
				Version: version,
				Logger:  logger,
				Watch:   watch,
				Lookup:  flags.lookup,
			}
			if cfg.MIDI.Enabled && !noMIDI {
				drv, err := openMIDIDriver()
				if err != nil {
					logger.Warn("midi driver unavailable", zap.Error(err))
				} else {
					defer drv.Close()
					opts.MIDIDriver = drv
				}
			}

			application, err := app.New(opts)
			if err != nil {
				return err
			}
			return application.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", true, "reload bindings when the configuration changes")
	cmd.Flags().BoolVar(&noMIDI, "no-midi", false, "do not open the MIDI driver")
	return cmd
}

// openMIDIDriver opens the system MIDI driver.
func openMIDIDriver() (drivers.Driver, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	return drv, nil
}
