package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/tally/internal/accounts"
	"github.com/JaimeStill/tally/internal/adjustments"
	"github.com/JaimeStill/tally/internal/anomalies"
	"github.com/JaimeStill/tally/internal/audit"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/deals"
	"github.com/JaimeStill/tally/internal/golden"
	"github.com/JaimeStill/tally/internal/ledger"
	"github.com/JaimeStill/tally/internal/mappings"
	"github.com/JaimeStill/tally/pkg/pagination"
)

func dealArg(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("deal must be a UUID: %w", err)
	}
	return id, nil
}

// dealCommand runs fn for the deal named by the single argument.
func dealCommand[T any](g *globals, use, short string, fn func(*cobra.Command, *session, auth.Scope, uuid.UUID) (T, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := g.scope()
			if err != nil {
				return err
			}
			dealID, err := dealArg(args)
			if err != nil {
				return err
			}

			return withSession(cmd, func(s *session) (T, error) {
				return fn(cmd, s, scope, dealID)
			})
		},
	}
}

func dealsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deal",
		Short: "Create and inspect deals",
	}
	cmd.AddCommand(
		dealCreateCommand(g),
		dealListCommand(g),
		dealCommand(g, "stats <deal>", "Show mapping and review progress for a deal",
			func(cmd *cobra.Command, s *session, scope auth.Scope, dealID uuid.UUID) (*deals.Stats, error) {
				return s.domain.Deals.Stats(cmd.Context(), scope, dealID)
			}),
	)
	return cmd
}

func dealCreateCommand(g *globals) *cobra.Command {
	var create deals.CreateCommand

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a deal for the organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := g.scope()
			if err != nil {
				return err
			}
			if _, err := create.Normalize(); err != nil {
				return err
			}

			return withSession(cmd, func(s *session) (*deals.Deal, error) {
				return s.domain.Deals.Create(cmd.Context(), scope, create)
			})
		},
	}

	cmd.Flags().StringVar(&create.Name, "name", "", "Deal name")
	cmd.Flags().StringVar(&create.Industry, "industry", "", "Target company industry")
	cmd.Flags().StringVar(&create.Notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func dealListCommand(g *globals) *cobra.Command {
	var (
		page   pagination.PageRequest
		search string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the organization's deals, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := g.scope()
			if err != nil {
				return err
			}
			if search != "" {
				page.Search = &search
			}

			return withSession(cmd, func(s *session) (*pagination.PageResult[deals.Deal], error) {
				return s.domain.Deals.List(cmd.Context(), scope, page)
			})
		},
	}

	cmd.Flags().IntVar(&page.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&page.PageSize, "page-size", 0, "Rows per page (0 uses the configured default)")
	cmd.Flags().StringVar(&search, "search", "", "Match deal name or industry")
	return cmd
}

func auditCommand(g *globals) *cobra.Command {
	return dealCommand(g, "audit <deal>", "Flag GL transactions that need client follow-up",
		func(cmd *cobra.Command, s *session, scope auth.Scope, dealID uuid.UUID) (*audit.ScanResult, error) {
			return s.domain.Audit.Scan(cmd.Context(), scope, dealID)
		})
}

func bridgeCommand(g *globals) *cobra.Command {
	return dealCommand(g, "bridge <deal>", "Compute the EBITDA bridge with approved adjustments",
		func(cmd *cobra.Command, s *session, scope auth.Scope, dealID uuid.UUID) (*adjustments.Bridge, error) {
			return s.domain.Adjustments.Bridge(cmd.Context(), scope, dealID)
		})
}

type aggregateOutput struct {
	Aggregate *accounts.AggregateResult `json:"aggregate"`
	Embedded  *accounts.RefreshResult   `json:"embedded,omitempty"`
}

func aggregateCommand(g *globals) *cobra.Command {
	var embed bool

	cmd := &cobra.Command{
		Use:   "aggregate <deal>",
		Short: "Dedupe a deal's GL rows into client accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := g.scope()
			if err != nil {
				return err
			}
			dealID, err := dealArg(args)
			if err != nil {
				return err
			}

			return withSession(cmd, func(s *session) (aggregateOutput, error) {
				ctx := cmd.Context()

				agg, err := s.domain.Accounts.Aggregate(ctx, scope, dealID)
				if err != nil {
					return aggregateOutput{}, err
				}
				out := aggregateOutput{Aggregate: agg}
				if embed {
					out.Embedded, err = s.domain.Accounts.RefreshEmbeddings(ctx, scope, dealID)
				}
				return out, err
			})
		},
	}

	cmd.Flags().BoolVar(&embed, "embed", true, "Embed new accounts before exiting")
	return cmd
}

func classifyCommand(g *globals) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "classify <deal>",
		Short: "Propose a COA for every client account of a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := g.scope()
			if err != nil {
				return err
			}
			dealID, err := dealArg(args)
			if err != nil {
				return err
			}

			return withSession(cmd, func(s *session) (*mappings.DealResult, error) {
				return s.domain.Mappings.ClassifyDeal(cmd.Context(), scope, dealID, force)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reclassify mappings that were already reviewed")
	return cmd
}

func bulkApproveCommand(g *globals) *cobra.Command {
	var minConfidence int

	cmd := &cobra.Command{
		Use:   "bulk-approve <deal>",
		Short: "Approve every green mapping at or above a confidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := g.scope()
			if err != nil {
				return err
			}
			dealID, err := dealArg(args)
			if err != nil {
				return err
			}

			return withSession(cmd, func(s *session) (*mappings.BulkResult, error) {
				return s.domain.Mappings.BulkApprove(cmd.Context(), scope, dealID, minConfidence)
			})
		},
	}

	cmd.Flags().IntVar(&minConfidence, "min", 90, "Minimum confidence (0-100)")
	return cmd
}

func periodCommand[T any](
	g *globals,
	use, short string,
	run func(*cobra.Command, *session, auth.Scope, uuid.UUID, ledger.Date) (T, error),
) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := g.scope()
			if err != nil {
				return err
			}
			dealID, err := dealArg(args)
			if err != nil {
				return err
			}
			start, err := ledger.ParseDate(period)
			if err != nil {
				return err
			}

			return withSession(cmd, func(s *session) (T, error) {
				return run(cmd, s, scope, dealID, start)
			})
		},
	}

	cmd.Flags().StringVar(&period, "period", "", "Period start date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func detectCommand(g *globals) *cobra.Command {
	return periodCommand(g, "detect <deal>", "Detect anomalies in one P&L period",
		func(cmd *cobra.Command, s *session, scope auth.Scope, dealID uuid.UUID, period ledger.Date) (*anomalies.DetectResult, error) {
			return s.domain.Anomalies.Detect(cmd.Context(), scope, dealID, period.Time)
		})
}

func reconcileCommand(g *globals) *cobra.Command {
	return periodCommand(g, "reconcile <deal>", "Reconcile one P&L period against the GL",
		func(cmd *cobra.Command, s *session, scope auth.Scope, dealID uuid.UUID, period ledger.Date) (*anomalies.ReconcileResult, error) {
			return s.domain.Anomalies.Reconcile(cmd.Context(), scope, dealID, period.Time)
		})
}

func goldenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "golden",
		Short: "Manage the golden mapping corpus",
	}
	cmd.AddCommand(goldenImportCommand())
	return cmd
}

func goldenImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Embed and import golden mappings from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			var entries []golden.ImportEntry
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			return withSession(cmd, func(s *session) (*golden.ImportResult, error) {
				return s.domain.Golden.Import(cmd.Context(), golden.ImportCommand{
					Source:  golden.SourceImport,
					Entries: entries,
				})
			})
		},
	}
}
