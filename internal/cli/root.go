// Package cli implements the auditctl operator commands.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "configs/auditlog.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for auditctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "auditctl",
		Short: "Operate an audit event log",
		Long:  "Administrative commands for the audit event log: schema, retention, queries and tokens.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", DefaultConfigPath, "path to the YAML config")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// loadConfig reads the config file. A missing file yields defaults.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	l, err := config.NewLoader(opts.ConfigPath, nil)
	if err != nil {
		return nil, err
	}
	return l.Config(), nil
}

// openStore loads the config and opens its store.
func openStore(ctx context.Context, opts *RootOptions) (*config.Config, store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}
