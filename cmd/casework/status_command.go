package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"casework/internal/config"
	"casework/internal/projections"
	"casework/internal/storage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				health, err := projections.NewService(db).Health(cmd.Context())
				if err != nil {
					return err
				}

				rows := [][]string{
					{"Database", yesNo(health.Database)},
					{"Unprocessed signals", strconv.Itoa(health.UnprocessedSignals)},
					{"Queue pending", strconv.Itoa(health.QueuePending)},
					{"Queue sending", strconv.Itoa(health.QueueSending)},
					{"Queue sent", strconv.Itoa(health.QueueSent)},
					{"Queue failed", strconv.Itoa(health.QueueFailed)},
					{"Queue cancelled", strconv.Itoa(health.QueueCancelled)},
				}
				renderTable(cmd.OutOrStdout(), []column{
					{title: "Metric"},
					{title: "Value", numeric: true},
				}, rows)
				return nil
			})
		},
	}
}
