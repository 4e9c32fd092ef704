package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/cuecontrol/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	lookup     config.LookupFunc
}

// newRootCmd creates the root cuecontrol command with all subcommands attached.
func newRootCmd() *cobra.Command {
	return newRootCmdWithEnv(os.LookupEnv)
}

func newRootCmdWithEnv(lookup config.LookupFunc) *cobra.Command {
	flags := &globalFlags{lookup: lookup}

	cmd := &cobra.Command{
		Use:           "cuecontrol",
		Short:         "Drive a cue session from MIDI, OSC and keyboard input",
		Long:          "cuecontrol maps incoming MIDI, OSC and keyboard messages to session actions\nor Lua scripts, using bindings read from a TOML or YAML file.",
		Version:       fmt.Sprintf("cuecontrol %s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a .toml or .yaml configuration file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(flags),
		newCheckCmd(flags),
		newRoutesCmd(flags),
		newActionsCmd(),
		newPortsCmd(),
		newSendCmd(flags),
	)
	return cmd
}

// loadConfig reads the file named by --config, or the defaults with
// environment overrides when no file is given.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath == "" {
		cfg, err = config.LoadDefault(f.lookup)
	} else {
		cfg, err = config.LoadFS(config.OSFS{}, f.configPath, f.lookup)
	}
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
