package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"casework/internal/config"
	"casework/internal/projections"
	"casework/internal/storage"
)

func newSignalsCommand(ctx *commandContext) *cobra.Command {
	signalsCmd := &cobra.Command{
		Use:   "signals",
		Short: "Inspect the signal event log",
	}

	signalsCmd.AddCommand(newSignalsListCommand(ctx))

	return signalsCmd
}

func newSignalsListCommand(ctx *commandContext) *cobra.Command {
	var typeFlag string
	var unprocessedOnly bool
	var page int
	var perPage int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List signal events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				query := projections.SignalQuery{
					Type: typeFlag,
					Page: projections.Page{Number: page, Size: perPage},
				}
				if unprocessedOnly {
					processed := false
					query.Processed = &processed
				}

				views, err := projections.NewService(db).Signals(cmd.Context(), query)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No signal events found")
					return nil
				}

				rows := make([][]string, 0, len(views))
				for _, view := range views {
					caseRef := "-"
					if view.CaseID > 0 {
						caseRef = strconv.FormatInt(view.CaseID, 10)
					}
					rows = append(rows, []string{
						view.ID,
						view.Type,
						caseRef,
						view.Source,
						formatTime(view.EmittedAt),
						yesNo(view.Processed),
					})
				}
				renderTable(cmd.OutOrStdout(), []column{
					{title: "ID"},
					{title: "Type"},
					{title: "Case", numeric: true},
					{title: "Source"},
					{title: "Emitted"},
					{title: "Processed"},
				}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&typeFlag, "type", "", "Filter by signal type")
	cmd.Flags().BoolVar(&unprocessedOnly, "unprocessed", false, "Show only unprocessed signals")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 50, "Signals per page")
	return cmd
}
