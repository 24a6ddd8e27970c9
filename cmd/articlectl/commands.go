package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-article/pkg/simplearticle/admin"
	"github.com/tendant/simple-article/pkg/simplearticle/config"
	repopg "github.com/tendant/simple-article/pkg/simplearticle/repo/postgres"
)

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	requirePostgres := func(cmd *cobra.Command) (*config.ServerConfig, error) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		if cfg.DatabaseType != "postgres" {
			return nil, fmt.Errorf("migrations need a postgres DATABASE_URL")
		}
		return cfg, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requirePostgres(cmd)
			if err != nil {
				return err
			}
			return repopg.MigrateUp(cfg.DatabaseURL, newLogger(cmd))
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requirePostgres(cmd)
			if err != nil {
				return err
			}
			return repopg.MigrateDown(cfg.DatabaseURL, steps, newLogger(cmd))
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requirePostgres(cmd)
			if err != nil {
				return err
			}
			v, dirty, err := repopg.MigrationVersion(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	})

	return cmd
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Resolve a slug through the redirect table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, _ *config.ServerConfig, c *config.Components, _ *slog.Logger) error {
				target, found, err := c.Service.ResolveRedirect(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON(cmd) {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"path": args[0], "target": target, "found": found})
				}
				if !found {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: no redirect\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], target)
				return nil
			})
		},
	}
}

// NewRedirectsCommand creates the redirects command group.
func NewRedirectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redirects",
		Short: "Inspect redirect stubs",
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List redirect stubs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, cfg *config.ServerConfig, c *config.Components, logger *slog.Logger) error {
				resp, err := newAdmin(cfg, c, logger).ListRedirects(ctx, admin.ListRedirectsRequest{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				if asJSON(cmd) {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SOURCE\tTARGET\tUPDATED")
				for _, r := range resp.Redirects {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.URLPath, r.Target, r.UpdatedAt.Format("2006-01-02 15:04"))
				}
				if resp.HasMore {
					fmt.Fprintf(tw, "...\t(more after offset %d)\t\n", resp.Offset+len(resp.Redirects))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", admin.DefaultBatchSize, "maximum number of stubs")
	list.Flags().IntVar(&offset, "offset", 0, "number of stubs to skip")
	cmd.AddCommand(list)

	var batchSize int
	audit := &cobra.Command{
		Use:   "audit",
		Short: "Report redirect chains, self references, orphans and shadowed stubs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, cfg *config.ServerConfig, c *config.Components, logger *slog.Logger) error {
				report, err := newAdmin(cfg, c, logger).AuditRedirects(ctx, admin.AuditRequest{BatchSize: batchSize})
				if err != nil {
					return err
				}
				if asJSON(cmd) {
					if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					printAudit(cmd.OutOrStdout(), report)
				}
				if !report.Healthy() {
					return fmt.Errorf("audit found %d problem(s)", len(report.Findings))
				}
				return nil
			})
		},
	}
	audit.Flags().IntVar(&batchSize, "batch-size", admin.DefaultBatchSize, "stubs read per page")
	cmd.AddCommand(audit)

	return cmd
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the article catalog",
	}

	var batchSize int
	var dryRun bool
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every catalog entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, cfg *config.ServerConfig, c *config.Components, logger *slog.Logger) error {
				result, err := newAdmin(cfg, c, logger).RebuildCatalog(ctx, admin.RebuildRequest{
					BatchSize: batchSize,
					DryRun:    dryRun,
					OnProgress: func(processed int64) {
						logger.Info("catalog rebuild progress", "processed", processed)
					},
				})
				if err != nil {
					return err
				}
				if asJSON(cmd) {
					if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "found:     %d\n", result.TotalFound)
					fmt.Fprintf(out, "processed: %d\n", result.TotalProcessed)
					fmt.Fprintf(out, "failed:    %d\n", result.TotalFailed)
					if len(result.FailedNumbers) > 0 {
						fmt.Fprintf(out, "failed numbers: %v\n", result.FailedNumbers)
					}
					if dryRun {
						fmt.Fprintln(out, "dry run: nothing was written")
					}
				}
				if result.Cancelled {
					return fmt.Errorf("catalog rebuild cancelled")
				}
				if result.TotalFailed > 0 {
					return fmt.Errorf("%d article(s) failed to rebuild", result.TotalFailed)
				}
				return nil
			})
		},
	}
	rebuild.Flags().IntVar(&batchSize, "batch-size", admin.DefaultBatchSize, "article numbers read per batch")
	rebuild.Flags().BoolVar(&dryRun, "dry-run", false, "count articles without writing")
	cmd.AddCommand(rebuild)

	return cmd
}

func newAdmin(cfg *config.ServerConfig, c *config.Components, logger *slog.Logger) admin.AdminService {
	return admin.New(c.Repository, admin.WithTeaserLength(cfg.TeaserLength), admin.WithLogger(logger))
}

func printAudit(w io.Writer, report *admin.AuditReport) {
	fmt.Fprintf(w, "scanned %d stub(s) at %s\n", report.Scanned, report.CheckedAt.Format("2006-01-02 15:04:05"))
	if report.Healthy() {
		fmt.Fprintln(w, "no problems found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSOURCE\tTARGET\tNEXT")
	for _, f := range report.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Kind, f.URLPath, f.Target, f.Next)
	}
	_ = tw.Flush()
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
