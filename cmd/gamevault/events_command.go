package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gamevault/internal/api"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var since uint64
	var limit int
	var follow bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent library and catalog events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				cursor := since
				for {
					page, err := client.Events(cmd.Context(), cursor, limit, follow)
					if err != nil {
						if follow && errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
					if err := printEvents(cmd.OutOrStdout(), page.Events, ctx.jsonOutput()); err != nil {
						return err
					}
					if page.Next > cursor {
						cursor = page.Next
					}
					if !follow {
						return nil
					}
					if cmd.Context().Err() != nil {
						return nil
					}
				}
			})
		},
	}

	cmd.Flags().Uint64Var(&since, "since", 0, "Only show events after this sequence")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum events per page")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep waiting for new events")
	return cmd
}

// printEvents writes one line per event; JSON mode emits newline-delimited
// records so follow output stays streamable.
func printEvents(out io.Writer, records []api.EventRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}
	for _, rec := range records {
		if _, err := fmt.Fprintf(out, "%6d  %s  %-28s %s\n", rec.Sequence, rec.Time, rec.Type, rec.Payload); err != nil {
			return err
		}
	}
	return nil
}
