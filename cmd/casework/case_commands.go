package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"casework/internal/casework"
	"casework/internal/config"
	"casework/internal/logging"
	"casework/internal/projections"
	"casework/internal/storage"
)

func newCaseCommand(ctx *commandContext) *cobra.Command {
	caseCmd := &cobra.Command{
		Use:   "case",
		Short: "Inspect and manage cases",
	}

	caseCmd.AddCommand(newCaseListCommand(ctx))
	caseCmd.AddCommand(newCaseShowCommand(ctx))
	caseCmd.AddCommand(newCaseNewCommand(ctx))
	caseCmd.AddCommand(newCaseTransitionCommand(ctx))
	caseCmd.AddCommand(newCaseContactCommand(ctx))
	caseCmd.AddCommand(newCaseRefreshCommand(ctx))
	caseCmd.AddCommand(newCaseInfoCommand(ctx))
	caseCmd.AddCommand(newCaseScopeCommand(ctx))

	return caseCmd
}

func parseCaseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid case id %q", arg)
	}
	return id, nil
}

func newCaseListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				var status casework.Status
				if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
					parsed, ok := casework.ParseStatus(trimmed)
					if !ok {
						return fmt.Errorf("unknown status %q", trimmed)
					}
					status = parsed
				}

				store := casework.NewStore(db)
				cases, err := store.ListCases(cmd.Context(), status, limit, 0)
				if err != nil {
					return err
				}
				if len(cases) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cases found")
					return nil
				}

				rows := make([][]string, 0, len(cases))
				for _, kase := range cases {
					rows = append(rows, []string{
						strconv.FormatInt(kase.ID, 10),
						kase.Title,
						string(kase.Status),
						strconv.Itoa(kase.ReadinessScore),
						string(kase.InfoGatheringStatus),
						string(kase.ScopeDefinitionStatus),
						formatTimePtr(kase.LastContactAt),
					})
				}
				renderTable(cmd.OutOrStdout(), []column{
					{title: "ID", numeric: true},
					{title: "Title"},
					{title: "Status"},
					{title: "Score", numeric: true},
					{title: "Info"},
					{title: "Scope"},
					{title: "Last Contact"},
				}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by case status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of cases to show")
	return cmd
}

func newCaseShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show one case with its transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				overview, err := projections.NewService(db).Case(cmd.Context(), caseID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Case %d: %s\n", overview.ID, overview.Title)
				fmt.Fprintf(out, "Status: %s\n", overview.Status)
				if overview.HeldStatus != "" {
					fmt.Fprintf(out, "Held status: %s\n", overview.HeldStatus)
				}
				fmt.Fprintf(out, "Readiness score: %d\n", overview.ReadinessScore)
				fmt.Fprintf(out, "Information gathering: %s\n", overview.InfoGatheringStatus)
				fmt.Fprintf(out, "Scope definition: %s\n", overview.ScopeDefinitionStatus)
				if len(overview.MissingInformation) > 0 {
					fmt.Fprintf(out, "Missing information: %s\n", strings.Join(overview.MissingInformation, ", "))
				}
				fmt.Fprintf(out, "Last contact: %s\n", formatTimePtr(overview.LastContactAt))

				if len(overview.History) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(overview.History))
				for _, entry := range overview.History {
					rows = append(rows, []string{
						entry.FromStatus,
						entry.ToStatus,
						entry.ChangedBy,
						formatTime(entry.ChangedAt),
						entry.Reason,
					})
				}
				renderTable(out, []column{
					{title: "From"},
					{title: "To"},
					{title: "By"},
					{title: "At"},
					{title: "Reason"},
				}, rows)
				return nil
			})
		},
	}
}

func newCaseNewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "new <title>",
		Short: "Create a case in the new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(args[0])
			if title == "" {
				return fmt.Errorf("case title must not be empty")
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				kase, err := casework.NewStore(db).CreateCase(cmd.Context(), title)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created case %d (%s)\n", kase.ID, kase.Status)
				return nil
			})
		},
	}
}

func newCaseTransitionCommand(ctx *commandContext) *cobra.Command {
	var actor string
	var reason string

	cmd := &cobra.Command{
		Use:   "transition <case-id> <target-status>",
		Short: "Attempt a status transition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			target, ok := casework.ParseStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				engine := casework.NewEngine(db, cfg.Readiness, logging.NewNop())
				kase, err := engine.AttemptTransition(cmd.Context(), caseID, target, actor, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Case %d is now %s\n", kase.ID, kase.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "cli", "Actor recorded in the status history")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the status history")
	return cmd
}

func newCaseContactCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "contact <case-id>",
		Short: "Record a client contact now and refresh readiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				engine := casework.NewEngine(db, cfg.Readiness, logging.NewNop())
				kase, err := engine.RecordContact(cmd.Context(), caseID, nowUTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded contact for case %d (score %d)\n", kase.ID, kase.ReadinessScore)
				return nil
			})
		},
	}
}

func newCaseRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <case-id>",
		Short: "Recompute the readiness score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				engine := casework.NewEngine(db, cfg.Readiness, logging.NewNop())
				kase, err := engine.RefreshReadiness(cmd.Context(), caseID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Case %d readiness score: %d\n", kase.ID, kase.ReadinessScore)
				return nil
			})
		},
	}
}
