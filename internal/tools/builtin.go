package tools

import (
	"fmt"
	"slices"

	"github.com/dotcommander/lmagent/internal/resolve"
)

// Options selects the built-in tools.
type Options struct {
	Resolver resolve.Resolver
	// Runner executes shell commands. Nil means DeniedRunner: the tool is
	// still advertised but every call fails.
	Runner Runner
	// Vision enables describe_image when its Client is set.
	Vision *Vision
}

// RegisterBuiltins registers the file, shell and image tools.
func RegisterBuiltins(reg *Registry, opts Options) error {
	runner := opts.Runner
	if runner == nil {
		runner = DeniedRunner{}
	}
	f := files{resolver: opts.Resolver}
	all := f.tools()
	all = slices.Insert(all, 3, commands{runner: runner}.tool())
	if opts.Vision != nil && opts.Vision.Client != nil {
		all = append(all, images{resolver: opts.Resolver, vision: *opts.Vision}.tool())
	}
	for _, tool := range all {
		if err := reg.Register(tool); err != nil {
			return fmt.Errorf("register builtins: %w", err)
		}
	}
	return nil
}
