package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gamevault/internal/documents"
	"gamevault/internal/engine"
	"gamevault/internal/ranking"
	"gamevault/internal/resolver"
)

type searchResult struct {
	Title      string                `json:"title"`
	Candidates []documents.Candidate `json:"candidates"`
	Decision   documents.Outcome     `json:"decision"`
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var year int
	var platform string
	var storefront string

	cmd := &cobra.Command{
		Use:   "search <title>",
		Short: "Rank catalog candidates for a title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			hints := ranking.Hints{Year: year, Platform: platform}
			if storefront != "" {
				sf, err := documents.ParseStorefront(storefront)
				if err != nil {
					return err
				}
				hints.Storefront = sf
			}

			ranker, err := ctx.ranker(cmd.Context())
			if err != nil {
				return err
			}
			candidates, err := ranker.Search(cmd.Context(), title, hints)
			if err != nil {
				return fmt.Errorf("search catalog: %w", err)
			}
			result := searchResult{
				Title:      title,
				Candidates: candidates,
				Decision:   resolver.Decide(candidates, engine.Thresholds(ctx.config)),
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				fmt.Fprintf(out, "No catalog candidates for %q\n", title)
				return nil
			}
			color := colorEnabled(cmd)
			fmt.Fprintln(out, renderTable(
				[]string{"#", "ID", "Name", "Year", "Score", "Popularity"},
				candidateRows(candidates),
				[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignRight},
				color,
			))
			fmt.Fprintf(out, "Decision: %s\n", describeOutcome(result.Decision, color))
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Release year hint")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform hint (windows, mac, linux, dos)")
	cmd.Flags().StringVar(&storefront, "storefront", "", "Storefront hint (steam, gog, egs)")
	return cmd
}

func candidateRows(candidates []documents.Candidate) [][]string {
	rows := make([][]string, 0, len(candidates))
	for i, c := range candidates {
		year := ""
		if y := c.Digest.ReleaseYear(); y > 0 {
			year = strconv.Itoa(y)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(c.Digest.ID, 10),
			c.Digest.Name,
			year,
			strconv.FormatFloat(c.Score, 'f', 3, 64),
			strconv.FormatInt(c.Digest.Popularity(), 10),
		})
	}
	return rows
}

func describeOutcome(o documents.Outcome, color bool) string {
	label := stateLabel(o.State, color)
	switch o.State {
	case documents.StateResolved:
		if o.Digest != nil {
			return fmt.Sprintf("%s to %s (%d)", label, o.Digest.Name, o.Digest.ID)
		}
	case documents.StateNeedsApproval:
		return fmt.Sprintf("%s, %d candidate(s)", label, len(o.Candidates))
	}
	return label
}
