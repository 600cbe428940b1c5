package cmd

import (
	"github.com/spf13/cobra"

	"github.com/chronodb/oplogd/cmd/start"
	"github.com/chronodb/oplogd/utils/log"
)

// flagPrintVersion shows the current oplogd version and exits.
var flagPrintVersion bool

const (
	versionTag   = "v0.1.0"
	versionBuild = "dev"
)

// Execute builds the command tree and executes commands.
func Execute() error {
	c := &cobra.Command{
		Use: "oplogd",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagPrintVersion {
				log.Info("oplogd version: %s (%s)", versionTag, versionBuild)
				return nil
			}
			return cmd.Usage()
		},
	}

	c.AddCommand(start.Cmd)
	c.Flags().BoolVarP(&flagPrintVersion, "version", "v", false, "show the version info and exit")

	return c.Execute()
}
