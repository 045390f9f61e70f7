package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/cleanup"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/launcher"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/service"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/stream"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		check   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [-- args...]",
		Short: "Stage, launch, and hold the distribution until interrupted",
		Long: `Stage the configured distribution, launch it, and print the startup verdict.

On success the process keeps running until stagerun receives SIGINT or SIGTERM,
or the process exits. With --check the process is stopped right after the
verdict. Staged files are removed in every case.

Exit status is 0 on success, 2 when startup failed, 3 when no verdict was
reached before the timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.load(ctx)
			if err != nil {
				return err
			}
			logger := opts.newLogger(cmd.ErrOrStderr())

			manager, err := service.NewManager(cfg, cleanup.Default(), logger)
			if err != nil {
				return err
			}

			launchOpts := launcher.Options{
				Args:            append(append([]string(nil), cfg.Launch.Args...), args...),
				Env:             cfg.Launch.Environ(os.Environ()),
				Dir:             cfg.Launch.WorkDir,
				SuccessPatterns: cfg.Launch.Success,
				Timeout:         cfg.Launch.Timeout(),
				Logger:          logger,
			}
			if timeout > 0 {
				launchOpts.Timeout = timeout
			}
			if cfg.Launch.Echo {
				launchOpts.Echo = cmd.OutOrStdout()
			}

			svc := service.NewRunService(manager, launcher.New(logger), service.SystemClock, logger)
			report, err := svc.Execute(ctx, service.RunRequest{
				Distribution: cfg.Dist(),
				Options:      launchOpts,
				Check:        check,
				OnVerdict: func(res *launcher.Result) {
					printVerdict(cmd.ErrOrStderr(), cfg.Dist().String(), res)
				},
			})
			if err != nil {
				return err
			}
			return verdictError(report.Result)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "stop the process right after the startup verdict")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override launch.timeout_ms")
	return cmd
}

// verdictError maps a startup outcome to the command's exit status.
func verdictError(res *launcher.Result) error {
	switch res.Outcome {
	case stream.Success:
		return nil
	case stream.Failure:
		return &ExitError{Code: exitStartupFailed}
	default:
		return &ExitError{Code: exitStartupTimeout}
	}
}

func printVerdict(w io.Writer, dist string, res *launcher.Result) {
	elapsed := res.Elapsed.Round(time.Millisecond)
	switch res.Outcome {
	case stream.Success:
		_, _ = fmt.Fprintf(w, "%s %s started in %s\n", color.GreenString("✓"), dist, elapsed)
	case stream.Failure:
		_, _ = fmt.Fprintf(w, "%s %s failed to start after %s\n", color.RedString("✗"), dist, elapsed)
		if res.Failure != "" {
			for _, line := range strings.Split(strings.TrimRight(res.Failure, "\n"), "\n") {
				_, _ = fmt.Fprintf(w, "    %s\n", line)
			}
		}
	default:
		_, _ = fmt.Fprintf(w, "%s %s gave no startup verdict within %s\n", color.YellowString("?"), dist, elapsed)
	}
}
