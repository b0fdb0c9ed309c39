package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/present"
)

func newRolesCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List the roles from the settings file and the roles directory",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			listRoles(os.Stdout, present.StdoutStyles(), &rt.cfg)
			return nil
		},
	}
}

func roleNames(cfg *config.Config, prefix string) []string {
	roles := make([]string, 0, len(cfg.Roles))
	for role := range cfg.Roles {
		if strings.HasPrefix(role, prefix) {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	return roles
}

func listRoles(w io.Writer, s present.Styles, cfg *config.Config) {
	for _, role := range roleNames(cfg, "") {
		line := role
		if role == cfg.Role {
			line += s.Timeago.Render(" (default)")
		}
		_, _ = fmt.Fprintln(w, line)
	}
}
