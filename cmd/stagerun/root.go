package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/config"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/logging"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/platform"
)

// Exit codes for startup verdicts.
const (
	exitStartupFailed  = 2
	exitStartupTimeout = 3
)

var newDetector = platform.NewDetector

// globalOptions holds the persistent root flags.
type globalOptions struct {
	configPath string
	debug      bool
	jsonLogs   bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "stagerun",
		Short: "Stage a binary distribution, launch it, and report whether it started",
		Long: `stagerun extracts a pre-fetched distribution archive into a dedicated
staging directory, wiping leftovers of earlier runs first, launches the
staged executable, and watches its output for a success pattern or the
[ERROR] marker. Every extracted file is removed afterwards; files still in
use are removed when stagerun exits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultPath(), "path to the Lua config file")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "log as JSON")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "show full config error details")

	cmd.AddCommand(
		newRunCmd(opts),
		newStageCmd(opts),
		newCleanCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// newLogger builds the slog-backed logger selected by the flags.
func (o *globalOptions) newLogger(w io.Writer) logging.Logger {
	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if o.jsonLogs {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return logging.NewSlog(slog.New(handler))
}

// load parses the config file.
func (o *globalOptions) load(ctx context.Context) (*config.Config, error) {
	cfg, err := config.NewParser(newDetector()).ParseFile(ctx, o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %s", o.configPath, config.FormatError(err, o.verbose))
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "stagerun %s\n", versionString())
			return err
		},
	}
}
