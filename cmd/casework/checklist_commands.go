package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"casework/internal/casework"
	"casework/internal/config"
	"casework/internal/logging"
	"casework/internal/storage"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

func newCaseInfoCommand(ctx *commandContext) *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Manage the information-gathering checklist",
	}

	infoCmd.AddCommand(newCaseInfoListCommand(ctx))
	infoCmd.AddCommand(newCaseInfoAddCommand(ctx))
	infoCmd.AddCommand(newCaseInfoReceivedCommand(ctx))

	return infoCmd
}

func newCaseInfoListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <case-id>",
		Short: "List information items for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				items, err := casework.NewStore(db).InformationItems(cmd.Context(), caseID)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No information items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Name,
						yesNo(item.Required),
						yesNo(item.Received),
					})
				}
				renderTable(cmd.OutOrStdout(), []column{
					{title: "ID", numeric: true},
					{title: "Name"},
					{title: "Required"},
					{title: "Received"},
				}, rows)
				return nil
			})
		},
	}
}

func newCaseInfoAddCommand(ctx *commandContext) *cobra.Command {
	var optional bool

	cmd := &cobra.Command{
		Use:   "add <case-id> <name>",
		Short: "Add an information item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				item, err := casework.NewStore(db).AddInformationItem(cmd.Context(), caseID, args[1], !optional)
				if err != nil {
					return err
				}
				if _, err := casework.NewEngine(db, cfg.Readiness, logging.NewNop()).RefreshReadiness(cmd.Context(), caseID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added information item %d\n", item.ID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&optional, "optional", false, "Mark the item as optional")
	return cmd
}

func newCaseInfoReceivedCommand(ctx *commandContext) *cobra.Command {
	var caseID int64

	cmd := &cobra.Command{
		Use:   "received <item-id>",
		Short: "Mark an information item as received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || itemID <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				store := casework.NewStore(db)
				if err := store.SetInformationReceived(cmd.Context(), itemID, true); err != nil {
					return err
				}
				if caseID > 0 {
					if _, err := casework.NewEngine(db, cfg.Readiness, logging.NewNop()).RefreshReadiness(cmd.Context(), caseID); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked information item %d as received\n", itemID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&caseID, "case", 0, "Case id to refresh readiness for")
	return cmd
}

func newCaseScopeCommand(ctx *commandContext) *cobra.Command {
	scopeCmd := &cobra.Command{
		Use:   "scope",
		Short: "Manage the scope-definition checklist",
	}

	scopeCmd.AddCommand(newCaseScopeListCommand(ctx))
	scopeCmd.AddCommand(newCaseScopeAddCommand(ctx))
	scopeCmd.AddCommand(newCaseScopeApproveCommand(ctx))

	return scopeCmd
}

func newCaseScopeListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <case-id>",
		Short: "List scope items for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				items, err := casework.NewStore(db).ScopeItems(cmd.Context(), caseID)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No scope items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					parent := "-"
					if item.ParentID != nil {
						parent = strconv.FormatInt(*item.ParentID, 10)
					}
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						parent,
						item.Name,
						yesNo(item.Required),
						yesNo(item.Approved),
					})
				}
				renderTable(cmd.OutOrStdout(), []column{
					{title: "ID", numeric: true},
					{title: "Parent", numeric: true},
					{title: "Name"},
					{title: "Required"},
					{title: "Approved"},
				}, rows)
				return nil
			})
		},
	}
}

func newCaseScopeAddCommand(ctx *commandContext) *cobra.Command {
	var parentID int64
	var optional bool

	cmd := &cobra.Command{
		Use:   "add <case-id> <name>",
		Short: "Add a scope item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				var parent *int64
				if parentID > 0 {
					parent = &parentID
				}
				item, err := casework.NewStore(db).AddScopeItem(cmd.Context(), caseID, parent, args[1], !optional)
				if err != nil {
					return err
				}
				if _, err := casework.NewEngine(db, cfg.Readiness, logging.NewNop()).RefreshReadiness(cmd.Context(), caseID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added scope item %d\n", item.ID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&parentID, "parent", 0, "Parent scope item id")
	cmd.Flags().BoolVar(&optional, "optional", false, "Mark the item as optional")
	return cmd
}

func newCaseScopeApproveCommand(ctx *commandContext) *cobra.Command {
	var caseID int64

	cmd := &cobra.Command{
		Use:   "approve <item-id>",
		Short: "Mark a scope item as approved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || itemID <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				store := casework.NewStore(db)
				if err := store.SetScopeApproved(cmd.Context(), itemID, true); err != nil {
					return err
				}
				if caseID > 0 {
					if _, err := casework.NewEngine(db, cfg.Readiness, logging.NewNop()).RefreshReadiness(cmd.Context(), caseID); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked scope item %d as approved\n", itemID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&caseID, "case", 0, "Case id to refresh readiness for")
	return cmd
}
