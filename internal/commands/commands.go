// Package commands builds the taskpulse command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/model"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
}

func (o *globalOptions) loadConfig() (*model.AppConfig, error) {
	return model.LoadConfig(o.configPath)
}

// New returns the root command.
func New() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "taskpulse",
		Short:         "Terminal task board with live pop-up notifications.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", model.DefaultConfigPath(), "path to the config file")

	addRun(cmd, opts)
	addDevserver(cmd)
	addDedup(cmd, opts)
	addLogin(cmd)
	return cmd
}
