// ABOUTME: Subcommands of the shopdb CLI
// ABOUTME: Query, transfer, backup, audit and inspection commands over one store instance

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/shopdb/internal/config"
	"github.com/2389/shopdb/internal/image"
	"github.com/2389/shopdb/internal/query"
	"github.com/2389/shopdb/internal/store"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	dimColor    = color.New(color.FgHiBlack)
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.ConfigPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", opts.ConfigPath)
			}
			if err := config.Write(opts.ConfigPath, config.Default()); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.ConfigPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query SQL [ARGS...]",
		Short: "Run one SQL statement against an instance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *app) error {
				inst, err := a.instance(ctx, opts.Instance)
				if err != nil {
					return err
				}
				res, err := inst.Query().Execute(ctx, args[0], queryArgs(args[1:])...)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
}

// queryArgs passes numbers through as numbers so comparisons against
// numeric columns behave. An argument is only converted when formatting the
// number gives back the same text, so "007" or "1e3" stay strings.
func queryArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
			out[i] = n
		} else if f, err := strconv.ParseFloat(s, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == s {
			out[i] = f
		} else {
			out[i] = s
		}
	}
	return out
}

func printResult(w io.Writer, res query.Result) error {
	if res.Kind == query.KindWrite {
		okColor.Fprintf(w, "%d rows affected\n", res.RowsAffected)
		return nil
	}
	t := newTable(res.Columns...)
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		t.row(cells...)
	}
	if err := t.render(w); err != nil {
		return err
	}
	dimColor.Fprintf(w, "(%d rows)\n", len(res.Rows))
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the instance image to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *app) error {
				inst, err := a.instance(ctx, opts.Instance)
				if err != nil {
					return err
				}
				data, err := inst.Export(ctx)
				if err != nil {
					return err
				}
				if output == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if output == "" {
					output = inst.ExportFilename()
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return fmt.Errorf("writing export: %w", err)
				}
				okColor.Fprintf(cmd.ErrOrStderr(), "exported %d bytes to %s\n", len(data), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: instance export filename)")
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the instance with an exported image or raw SQLite file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading import file: %w", err)
			}
			return withApp(opts, cmd, func(ctx context.Context, a *app) error {
				inst, err := a.instance(ctx, opts.Instance)
				if err != nil {
					return err
				}
				if err := inst.Import(ctx, data); err != nil {
					return err
				}
				okColor.Fprintf(cmd.OutOrStdout(), "imported %s into %s\n", args[0], inst.Identity())
				return nil
			})
		},
	}
}

func newBackupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a timestamped backup of the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *app) error {
				inst, err := a.instance(ctx, opts.Instance)
				if err != nil {
					return err
				}
				key, err := inst.Backup(ctx)
				if err != nil {
					return err
				}
				okColor.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}
}

func newBackupsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backup keys of the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *app) error {
				inst, err := a.instance(ctx, opts.Instance)
				if err != nil {
					return err
				}
				keys, err := inst.Backups(ctx)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
}

func newRestoreCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore KEY",
		Short: "Replace the instance with a stored backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *app) error {
				inst, err := a.instance(ctx, opts.Instance)
				if err != nil {
					return err
				}
				if err := inst.RestoreBackup(ctx, args[0]); err != nil {
					return err
				}
				okColor.Fprintf(cmd.OutOrStdout(), "restored %s\n", args[0])
				return nil
			})
		},
	}
}

func newAuditCommand(opts *rootOptions) *cobra.Command {
	var (
		actor string
		limit int
	)
	cmd := &cobra.Command{
		Use:       "audit logins|activity|transactions",
		Short:     "List audit records, newest first",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"logins", "activity", "transactions"},
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.AuditFilter{Limit: limit}
			if actor != "" {
				filter.Actor = &actor
			}
			return withApp(opts, cmd, func(ctx context.Context, a *app) error {
				inst, err := a.instance(ctx, opts.Instance)
				if err != nil {
					return err
				}
				return printAudit(ctx, cmd.OutOrStdout(), inst.Store(), args[0], filter)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "only records for this user id")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records (default 100, max 1000)")
	return cmd
}

func printAudit(ctx context.Context, w io.Writer, s *store.Store, kind string, f store.AuditFilter) error {
	var t *table
	switch kind {
	case "logins":
		events, err := s.ListLoginEvents(ctx, f)
		if err != nil {
			return err
		}
		t = newTable("TIME", "USER", "EMAIL", "SUCCESS")
		for _, e := range events {
			t.row(stamp(e.CreatedAt), e.UserID, e.Email, strconv.FormatBool(e.Success))
		}
	case "activity":
		events, err := s.ListActivityEvents(ctx, f)
		if err != nil {
			return err
		}
		t = newTable("TIME", "ACTOR", "ACTION", "TARGET")
		for _, e := range events {
			t.row(stamp(e.CreatedAt), e.UserID, e.Action, e.TargetType+":"+e.TargetID)
		}
	case "transactions":
		events, err := s.ListTransactionEvents(ctx, f)
		if err != nil {
			return err
		}
		t = newTable("TIME", "USER", "ORDER", "AMOUNT", "METHOD", "STATUS")
		for _, e := range events {
			t.row(stamp(e.CreatedAt), e.UserID, e.OrderID, strconv.FormatFloat(e.Amount, 'f', 2, 64), e.PaymentMethod, e.Status)
		}
	default:
		return fmt.Errorf("unknown audit log %q", kind)
	}
	return t.render(w)
}

func stamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the header of an exported image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}
			h, err := image.Inspect(data)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if h.Magic == "" {
				fmt.Fprintln(w, "format:   raw sqlite")
			} else {
				fmt.Fprintf(w, "format:   %s v%d\n", h.Magic, h.Version)
				fmt.Fprintf(w, "identity: %s\n", h.Identity)
				fmt.Fprintf(w, "created:  %s\n", h.CreatedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(w, "size:     %d\n", h.Size)
			fmt.Fprintf(w, "checksum: %s\n", hex.EncodeToString(h.Checksum))
			return nil
		},
	}
}
