package cmd

import (
	"os"

	"github.com/dotcommander/lmagent/internal/config"
)

// Execute wires commands and runs cobra.
func Execute(build BuildInfo, cfg config.Config, cfgErr error) {
	root := NewRootCmd(build, cfg, cfgErr)
	if err := root.Execute(); err != nil {
		handleError(err)
		os.Exit(1)
	}
}
