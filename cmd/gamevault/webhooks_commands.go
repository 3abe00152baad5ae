package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gamevault/internal/api"
	"gamevault/internal/webhooks"
)

func newWebhooksCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage catalog webhook subscriptions",
	}
	cmd.AddCommand(newWebhooksRegisterCommand(ctx))
	cmd.AddCommand(newWebhooksRetryCommand(ctx))
	return cmd
}

func newWebhooksRegisterCommand(ctx *commandContext) *cobra.Command {
	var publicURL string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register create, update and delete hooks with the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, _, err := ctx.catalogClient(cmd.Context())
			if err != nil {
				return err
			}
			base := strings.TrimSpace(publicURL)
			if base == "" {
				base = ctx.config.Webhooks.PublicURL
			}
			if err := webhooks.Register(cmd.Context(), conn, base, ctx.config.Webhooks.Secret); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, method := range webhooks.Methods() {
				fmt.Fprintf(out, "Registered %s\n", webhooks.HookURL(base, method))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&publicURL, "url", "", "Public base URL of the daemon (defaults to webhooks.public_url)")
	return cmd
}

func newWebhooksRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Re-run stored webhook failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				report, err := client.RetryFailures(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Attempted", "Recovered", "Failed"},
					[][]string{{
						strconv.Itoa(report.Attempted),
						strconv.Itoa(report.Recovered),
						strconv.Itoa(report.Failed),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight},
					colorEnabled(cmd),
				))
				return nil
			})
		},
	}
}
