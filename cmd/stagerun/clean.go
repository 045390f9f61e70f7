package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/cleanup"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/service"
)

func newCleanCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove a file set left by \"stagerun stage\" or a crashed run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			logger := opts.newLogger(cmd.ErrOrStderr())

			manager, err := service.NewManager(cfg, cleanup.Default(), logger)
			if err != nil {
				return err
			}
			result, err := service.Clean(manager, cleanup.Default())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !result.ManifestFound {
				_, _ = fmt.Fprintf(out, "Nothing recorded for %s\n", manager.Dir())
				return nil
			}
			if result.DeferredErr != nil {
				_, _ = fmt.Fprintln(out, color.YellowString("Some files could not be removed: %v", result.DeferredErr))
				return &ExitError{Code: 1}
			}
			_, _ = fmt.Fprintf(out, "%s removed %s\n", color.GreenString("✓"), manager.Dir())
			return nil
		},
	}
}
