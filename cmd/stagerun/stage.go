package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/cleanup"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/service"
)

func newStageCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stage",
		Short: "Stage the distribution and print the extracted file set",
		Long: `Wipe the staging directory and extract the configured distribution into it,
then print the extracted files. The files stay in place; remove them with
"stagerun clean" (requires staging.manifest = true).`,
		Args: cobra.NoArgs,
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
			fs, err := service.Stage(manager, cfg.Dist())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s %s staged in %s\n", color.GreenString("✓"), cfg.Dist(), fs.BaseDir)
			_, _ = fmt.Fprintf(out, "  %-10s %s\n", distribution.Executable, fs.Executable)
			for _, t := range distribution.NonExecutableTypes {
				for _, f := range fs.FilesOf(t) {
					_, _ = fmt.Fprintf(out, "  %-10s %s\n", t, f)
				}
			}
			if !cfg.Staging.Manifest {
				_, _ = fmt.Fprintln(out, color.YellowString("Warning: staging.manifest is off; \"stagerun clean\" cannot find these files"))
			}
			return nil
		},
	}
}
