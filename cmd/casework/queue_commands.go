package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"casework/internal/config"
	"casework/internal/notifyqueue"
	"casework/internal/projections"
	"casework/internal/storage"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the notification queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var signalFlag string
	var hookFlag string
	var page int
	var perPage int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notification queue entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				query := projections.QueueQuery{
					Status:        statusFlag,
					SignalEventID: signalFlag,
					HookID:        hookFlag,
					Page:          projections.Page{Number: page, Size: perPage},
				}
				views, err := projections.NewService(db).QueueEntries(cmd.Context(), query)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No queue entries found")
					return nil
				}

				rows := make([][]string, 0, len(views))
				for _, view := range views {
					rows = append(rows, []string{
						strconv.FormatInt(view.ID, 10),
						view.SignalEventID,
						view.HookID,
						view.Status,
						view.Channel,
						strings.Join(view.To, ","),
						fmt.Sprintf("%d/%d", view.Attempt, view.MaxRetries),
						formatTimePtr(view.NextAttemptAt),
						view.LastError,
					})
				}
				renderTable(cmd.OutOrStdout(), []column{
					{title: "ID", numeric: true},
					{title: "Signal"},
					{title: "Hook"},
					{title: "Status"},
					{title: "Channel"},
					{title: "To"},
					{title: "Attempts", numeric: true},
					{title: "Next Attempt"},
					{title: "Last Error"},
				}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by entry status")
	cmd.Flags().StringVar(&signalFlag, "signal", "", "Filter by signal event id")
	cmd.Flags().StringVar(&hookFlag, "hook", "", "Filter by hook id")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 50, "Entries per page")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue entry counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				stats, err := notifyqueue.NewStore(db).Stats(cmd.Context())
				if err != nil {
					return err
				}

				statuses := []notifyqueue.Status{
					notifyqueue.StatusPending,
					notifyqueue.StatusSending,
					notifyqueue.StatusSent,
					notifyqueue.StatusFailed,
					notifyqueue.StatusCancelled,
				}
				rows := make([][]string, 0, len(statuses))
				total := 0
				for _, status := range statuses {
					count := stats[status]
					total += count
					rows = append(rows, []string{string(status), strconv.Itoa(count)})
				}
				rows = append(rows, []string{"total", strconv.Itoa(total)})
				renderTable(cmd.OutOrStdout(), []column{
					{title: "Status"},
					{title: "Count", numeric: true},
				}, rows)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <entry-id> [entry-id...]",
		Short: "Reset failed entries for another delivery attempt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid entry id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				retried, err := notifyqueue.NewStore(db).RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d entries for retry\n", retried)
				return nil
			})
		},
	}
}
