package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/filetable/backend/internal/config"
	"github.com/filetable/backend/internal/decode"
	"github.com/filetable/backend/internal/logger"
	"github.com/filetable/backend/internal/source"
	"github.com/filetable/backend/internal/upload"
	"github.com/filetable/backend/internal/view"
)

// ReadFormats are the output formats accepted by the read command.
var ReadFormats = []string{view.FormatText, view.FormatJSON, view.FormatYAML}

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	Format      string
	Lenient     bool
	StripBOM    bool
	Concurrency int
	MaxSize     int64
}

// ReadSummary describes how a read went.
type ReadSummary struct {
	Selected int
	Decoded  int
	Failed   int
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{}

	cmd := &cobra.Command{
		Use:   "read <path>...",
		Short: "Read files and print them as a Name/Content table",
		Long: `Read every path concurrently and print one row per file that decodes as UTF-8.

Rows appear in the order the reads finished, not the order of the arguments.
Files that cannot be read or are not valid UTF-8 are left out and reported on
stderr; the exit code is then 1.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.ConfigPath != "" {
				if err := applyConfigDefaults(cmd, opts, rootOpts.ConfigPath); err != nil {
					return err
				}
			}
			_, err := runRead(cmd.Context(), opts, rootOpts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", view.FormatText, "output format (text|json|yaml)")
	cmd.Flags().BoolVar(&opts.Lenient, "lenient", false, "replace invalid UTF-8 with U+FFFD instead of dropping the file")
	cmd.Flags().BoolVar(&opts.StripBOM, "strip-bom", false, "remove a leading UTF-8 byte order mark")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", 0, "maximum concurrent reads (0 = one per file)")
	cmd.Flags().Int64Var(&opts.MaxSize, "max-size", 0, "skip files larger than this many bytes (0 = no limit)")

	return cmd
}

// applyConfigDefaults fills flags the user did not set from the config file.
func applyConfigDefaults(cmd *cobra.Command, opts *ReadOptions, path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("lenient") {
		opts.Lenient = decode.Mode(cfg.Processing.DecodeMode) == decode.ModeLenient
	}
	if !flags.Changed("strip-bom") {
		opts.StripBOM = cfg.Processing.StripBOM
	}
	if !flags.Changed("concurrency") {
		opts.Concurrency = cfg.Processing.MaxConcurrentReads
	}
	if !flags.Changed("max-size") {
		opts.MaxSize = cfg.Storage.MaxFileSize
	}
	return nil
}

func runRead(ctx context.Context, opts *ReadOptions, rootOpts *RootOptions, paths []string, stdout, stderr io.Writer) (ReadSummary, error) {
	summary := ReadSummary{Selected: len(paths)}

	if !isReadFormat(opts.Format) {
		return summary, NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ReadFormats))
	}
	renderer, err := view.ForFormat(opts.Format)
	if err != nil {
		return summary, WrapExitError(ExitCommandError, "invalid format", err)
	}

	mode := decode.ModeStrict
	if opts.Lenient {
		mode = decode.ModeLenient
	}
	decoder, err := decode.New(mode, opts.StripBOM)
	if err != nil {
		return summary, WrapExitError(ExitCommandError, "invalid decode mode", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Setup(logger.EnvLocal, stderr, rootOpts.Verbose)

	store := upload.NewStore()
	dispatcher := upload.NewDispatcher(store,
		upload.WithDecoder(decoder),
		upload.WithLogger(log),
		upload.WithMaxConcurrent(opts.Concurrency),
	)

	sources := make([]source.Readable, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, source.NewFile(p, opts.MaxSize))
	}

	batch := dispatcher.Dispatch(ctx, sources)
	batch.Wait()

	summary.Failed = batch.Failed()
	summary.Decoded = store.Len()

	if err := renderer.Render(stdout, view.Project(store.Snapshot())); err != nil {
		return summary, WrapExitError(ExitCommandError, "failed to write output", err)
	}

	if summary.Failed > 0 {
		return summary, NewExitError(ExitFailure, fmt.Sprintf("%d of %d files were not read", summary.Failed, summary.Selected))
	}
	return summary, nil
}

func isReadFormat(format string) bool {
	for _, f := range ReadFormats {
		if f == format {
			return true
		}
	}
	return false
}
