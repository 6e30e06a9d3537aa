// Package cli wires the filetable commands.
package cli

import (
	"github.com/spf13/cobra"
)

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version   string
	BuildTime string
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// ConfigPath is the XML config file. Empty means next to the executable.
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the filetable CLI.
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "filetable",
		Short:         "Read a selection of text files into a Name/Content table",
		Long:          "filetable reads every selected file concurrently, keeps the ones that are valid UTF-8 text, and shows them as a two-column table in the browser or the terminal.",
		Version:       info.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to the XML config file (default: filetable.config next to the binary)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewServeCommand(opts, info))
	cmd.AddCommand(NewReadCommand(opts))

	return cmd
}
