// Package main provides the lmagent CLI, a coding agent for LM Studio.
package main

import (
	"github.com/dotcommander/lmagent/internal/cmd"
	"github.com/dotcommander/lmagent/internal/config"
)

// Build vars.
var (
	//nolint: gochecknoglobals
	Version = ""
	//nolint: gochecknoglobals
	CommitSHA = ""
)

func main() {
	cfg, cfgErr := config.Ensure()
	cmd.Execute(cmd.BuildInfo{Version: Version, CommitSHA: CommitSHA}, cfg, cfgErr)
}
