package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"casework/internal/config"
	"casework/internal/hooks"
	"casework/internal/signal"
	"casework/internal/storage"
)

func newHooksCommand(ctx *commandContext) *cobra.Command {
	hooksCmd := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect and seed notification hooks",
	}

	hooksCmd.AddCommand(newHooksListCommand(ctx))
	hooksCmd.AddCommand(newHooksSeedCommand(ctx))

	return hooksCmd
}

func newHooksListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured hooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				rows, err := hooks.NewSQLRepository(db).ListHooks(cmd.Context())
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No hooks configured")
					return nil
				}

				tableRows := make([][]string, 0, len(rows))
				for _, hook := range rows {
					delay := "-"
					if hook.DeliveryDelay > 0 {
						delay = hook.DeliveryDelay.String()
					}
					conditional := yesNo(hook.Conditions != "")
					tableRows = append(tableRows, []string{
						hook.ID,
						hook.SignalType,
						yesNo(hook.Enabled),
						hook.Channel,
						hook.Recipients,
						conditional,
						strconv.Itoa(hook.MaxRetries),
						delay,
						strconv.Itoa(hook.Priority),
					})
				}
				renderTable(cmd.OutOrStdout(), []column{
					{title: "ID"},
					{title: "Signal Type"},
					{title: "Enabled"},
					{title: "Channel"},
					{title: "Recipients"},
					{title: "Conditional"},
					{title: "Retries", numeric: true},
					{title: "Delay", numeric: true},
					{title: "Priority", numeric: true},
				}, tableRows)
				return nil
			})
		},
	}
}

func newHooksSeedCommand(ctx *commandContext) *cobra.Command {
	var (
		signalType   string
		channel      string
		recipients   string
		conditions   string
		maxRetries   int
		deliverySecs int
		priority     int
		disabled     bool
	)

	cmd := &cobra.Command{
		Use:   "seed <hook-id>",
		Short: "Insert or replace a hook row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := signal.ParseType(signalType); !ok {
				return fmt.Errorf("unknown signal type %q", signalType)
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				hook := hooks.RawHook{
					ID:            args[0],
					SignalType:    signalType,
					Enabled:       !disabled,
					Channel:       channel,
					Recipients:    recipients,
					Conditions:    conditions,
					MaxRetries:    maxRetries,
					DeliveryDelay: time.Duration(deliverySecs) * time.Second,
					Priority:      priority,
				}
				if err := hooks.NewSQLRepository(db).SeedHook(cmd.Context(), hook); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded hook %s\n", hook.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&signalType, "signal-type", "", "Signal type the hook fires on")
	cmd.Flags().StringVar(&channel, "channel", "email", "Delivery channel")
	cmd.Flags().StringVar(&recipients, "recipients", "", "Recipient spec JSON")
	cmd.Flags().StringVar(&conditions, "conditions", "", "Condition expression JSON")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Delivery attempts before the entry fails (0 uses the configured default)")
	cmd.Flags().IntVar(&deliverySecs, "delay", 0, "Delivery delay in seconds")
	cmd.Flags().IntVar(&priority, "priority", 0, "Hook priority")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Seed the hook in a disabled state")
	_ = cmd.MarkFlagRequired("signal-type")
	_ = cmd.MarkFlagRequired("recipients")
	return cmd
}
