package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/auditlog/internal/api"
	"github.com/gyaneshwarpardhi/auditlog/internal/auth"
	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/query"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
	"github.com/gyaneshwarpardhi/auditlog/internal/sweeper"
	"github.com/gyaneshwarpardhi/auditlog/internal/writer"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Provision the event table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, st, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			res := map[string]string{"driver": cfg.Store.Driver, "table": store.Table, "status": "migrated"}
			return newPrinter(opts, cmd.OutOrStdout()).print(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s: table %s is provisioned\n", cfg.Store.Driver, store.Table)
				return err
			})
		},
	}
}

type deleteResult struct {
	Deleted int64     `json:"deleted"`
	Before  time.Time `json:"before"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete events older than the retention horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, st, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer st.Close()
			sw := sweeper.New(st, config.Static{C: cfg}, nil)
			cutoff := sw.Cutoff()
			n, err := sw.DeleteBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return printDeleted(opts, cmd.OutOrStdout(), deleteResult{Deleted: n, Before: cutoff})
		},
	}
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(opts *RootOptions) *cobra.Command {
	var before string
	cmd := &cobra.Command{
		Use:   "purge --before <instant>",
		Short: "Delete events older than an explicit instant",
		Long: `Delete every event with a timestamp strictly before --before.

The instant may be RFC 3339, YYYY-MM-DD (midnight in store.timezone) or unix seconds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, st, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer st.Close()
			t, err := api.ParseInstant(before, cfg.Store.Location())
			if err != nil {
				return err
			}
			n, err := sweeper.New(st, config.Static{C: cfg}, nil).DeleteBefore(ctx, t)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			return printDeleted(opts, cmd.OutOrStdout(), deleteResult{Deleted: n, Before: t})
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "delete events older than this instant")
	_ = cmd.MarkFlagRequired("before")
	return cmd
}

func printDeleted(opts *RootOptions, out io.Writer, res deleteResult) error {
	return newPrinter(opts, out).print(res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "deleted %d event(s) before %s\n", res.Deleted, res.Before.Format(time.RFC3339))
		return err
	})
}

// NewQueryCommand creates the query command.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	var p query.Params
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List events matching filters, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, st, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer st.Close()
			p.Page = query.ClampPage(p.Page)
			p.PerPage = query.ClampPerPage(p.PerPage)
			res := query.New(st, config.Static{C: cfg}, nil).Run(ctx, p)
			return newPrinter(opts, cmd.OutOrStdout()).print(res, func(w io.Writer) error {
				if res.Degraded {
					fmt.Fprintln(w, "warning: store unavailable")
				}
				if err := writeEvents(w, res.Items); err != nil {
					return err
				}
				_, err := fmt.Fprintf(w, "page %d/%d, %d total\n", res.Page, res.TotalPages, res.Total)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Type, "type", "", "exact event type")
	f.StringVar(&p.Severity, "severity", "", "exact severity (info|warning|error)")
	f.StringVar(&p.Search, "search", "", "substring of the message")
	f.StringVar(&p.DateFrom, "from", "", "first day, YYYY-MM-DD (inclusive)")
	f.StringVar(&p.DateTo, "to", "", "last day, YYYY-MM-DD (inclusive)")
	f.IntVar(&p.Page, "page", 1, "page number")
	f.IntVar(&p.PerPage, "per-page", query.DefaultPerPage, "events per page")
	return cmd
}

// NewLogCommand creates the log command.
func NewLogCommand(opts *RootOptions) *cobra.Command {
	var (
		in     event.Input
		origin writer.Origin
	)
	cmd := &cobra.Command{
		Use:   "log --type <type>",
		Short: "Record one event directly in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, st, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer st.Close()
			rec, err := writer.New(st, nil, nil, nil).Write(ctx, in, origin)
			if err != nil {
				return err
			}
			if rec.Degraded {
				return errors.New("store unavailable: event not recorded")
			}
			return newPrinter(opts, cmd.OutOrStdout()).print(rec, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "recorded event %d (%s, %s)\n", rec.ID, rec.Event.Type, rec.Event.Severity)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Type, "type", "", "event type")
	f.StringVar(&in.Message, "message", "", "free-text message")
	f.StringVar(&in.Severity, "severity", "info", "info|warning|error")
	f.StringVar(&origin.Actor, "actor", "", "acting principal (default Guest)")
	f.StringVar(&origin.Address, "address", "", "source IP address (default 0.0.0.0)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// NewTokenCommand creates the token command.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		actor, role string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token --actor <name>",
		Short: "Mint a bearer token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if role == "" {
				role = cfg.Auth.OperatorRole
			}
			tok, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.OperatorRole).Issue(actor, role, ttl)
			if err != nil {
				return err
			}
			res := map[string]string{"token": tok, "actor": actor, "role": role}
			return newPrinter(opts, cmd.OutOrStdout()).print(res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, tok)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&actor, "actor", "", "actor name carried in the token subject")
	f.StringVar(&role, "role", "", "role claim (default auth.operator_role)")
	f.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
