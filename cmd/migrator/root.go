package main

import (
	"context"

	"github.com/spf13/cobra"
)

// cli wires the command tree to the app built from the persistent flags
type cli struct {
	root *cobra.Command
	app  *app
}

func newCLI() *cli {
	c := &cli{}
	var configPath, logLevel string

	c.root = &cobra.Command{
		Use:           "migrator",
		Short:         "Migrate accounting data between platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			a, err := newApp(configPath, logLevel)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	c.root.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (default: migrator.toml)")
	c.root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	c.root.AddCommand(newRunCmd(c), newCheckCmd(c), newHistoryCmd(c))
	return c
}

// execute runs the command line and releases the app afterwards
func (c *cli) execute(ctx context.Context, args []string) error {
	defer func() {
		if c.app != nil {
			c.app.close()
		}
	}()
	c.root.SetArgs(args)
	return c.root.ExecuteContext(ctx)
}
