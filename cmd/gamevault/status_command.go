package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gamevault/internal/api"
	"gamevault/internal/catalog"
	"gamevault/internal/preflight"
)

type statusReport struct {
	Checks []preflight.Result `json:"checks"`
	Daemon *api.DaemonStatus  `json:"daemon,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run preflight checks and show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var doer catalog.Doer
			if conn, _, _, err := ctx.catalogClient(cmd.Context()); err == nil {
				doer = conn
			}
			report := statusReport{Checks: preflight.RunAll(cmd.Context(), cfg, doer)}

			var daemonStatus api.DaemonStatus
			err = ctx.withClient(func(client *api.Client) error {
				var statusErr error
				daemonStatus, statusErr = client.Status(cmd.Context())
				return statusErr
			})
			switch {
			case err == nil:
				report.Daemon = &daemonStatus
			case errors.Is(err, api.ErrAPIUnavailable):
			default:
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			renderStatus(cmd, report, colorEnabled(cmd))
			if failed := preflight.Failed(report.Checks); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}

func renderStatus(cmd *cobra.Command, report statusReport, color bool) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		result := "ok"
		if !check.Passed {
			result = "FAIL"
		}
		rows = append(rows, []string{check.Name, result, check.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil, color))

	if report.Daemon == nil {
		fmt.Fprintln(out, "Daemon: not running")
		return
	}
	d := report.Daemon
	fmt.Fprintln(out, renderTable(
		[]string{"Daemon", "Value"},
		[][]string{
			{"Running", yesNo(d.Running)},
			{"PID", strconv.Itoa(d.PID)},
			{"Started", d.StartedAt},
			{"Database", d.DatabasePath},
			{"Users", strconv.Itoa(d.Reconcile.Users)},
			{"Reconcile", yesNo(d.Reconcile.Enabled)},
			{"Webhooks", yesNo(d.Webhooks.Enabled)},
			{"Webhooks pending", strconv.Itoa(d.Webhooks.Pending)},
			{"Webhooks applied", strconv.FormatUint(d.Webhooks.Stats.Applied, 10)},
			{"Webhook failures", strconv.Itoa(d.Webhooks.Failures)},
		},
		[]columnAlignment{alignLeft, alignRight},
		color,
	))
}
