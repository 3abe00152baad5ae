package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gamevault/internal/api"
	"gamevault/internal/documents"
	"gamevault/internal/ranking"
)

func requireUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return errors.New("--user is required")
	}
	return nil
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var (
		user       string
		entryID    string
		title      string
		storefront string
		storeID    string
		catalogID  int64
		year       int
		platform   string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Ingest one store entry and resolve it against the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(user); err != nil {
				return err
			}
			sf, err := documents.ParseStorefront(storefront)
			if err != nil {
				return err
			}
			entry := documents.StoreEntry{
				ID:          defaultEntryID(entryID, storeID, catalogID, title),
				Title:       strings.TrimSpace(title),
				Storefront:  sf,
				StoreID:     strings.TrimSpace(storeID),
				CatalogID:   catalogID,
				Platform:    strings.TrimSpace(platform),
				ReleaseYear: year,
			}
			if err := entry.Validate(); err != nil {
				return err
			}

			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Ingest(cmd.Context(), user, entry)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				color := colorEnabled(cmd)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s\n", resp.Key, describeOutcome(resp.Outcome, color))
				if len(resp.Outcome.Candidates) > 0 {
					fmt.Fprintln(out, renderTable(
						[]string{"#", "ID", "Name", "Year", "Score", "Popularity"},
						candidateRows(resp.Outcome.Candidates),
						[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignRight},
						color,
					))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Library owner")
	cmd.Flags().StringVar(&entryID, "id", "", "Entry id within the storefront (defaults to the store id)")
	cmd.Flags().StringVar(&title, "title", "", "Store title")
	cmd.Flags().StringVar(&storefront, "storefront", "", "Storefront (steam, gog, egs, wikipedia, metacritic, library)")
	cmd.Flags().StringVar(&storeID, "store-id", "", "Storefront product id")
	cmd.Flags().Int64Var(&catalogID, "catalog-id", 0, "Known catalog game id")
	cmd.Flags().IntVar(&year, "year", 0, "Release year hint")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform hint")
	return cmd
}

// defaultEntryID picks the most stable identifier available.
func defaultEntryID(entryID, storeID string, catalogID int64, title string) string {
	switch {
	case strings.TrimSpace(entryID) != "":
		return strings.TrimSpace(entryID)
	case strings.TrimSpace(storeID) != "":
		return strings.TrimSpace(storeID)
	case catalogID > 0:
		return strconv.FormatInt(catalogID, 10)
	default:
		return strings.ReplaceAll(ranking.Normalize(title), " ", "-")
	}
}

func newUnresolvedCommand(ctx *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "unresolved",
		Short: "List entries awaiting approval or unknown to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(user); err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Unresolved(cmd.Context(), user)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintf(out, "No unresolved entries for %s\n", user)
					return nil
				}
				color := colorEnabled(cmd)
				rows := make([][]string, 0, len(resp.Items))
				for _, item := range resp.Items {
					best, score := "", ""
					if len(item.Candidates) > 0 {
						top := item.Candidates[0]
						best = fmt.Sprintf("%s (%d)", top.Digest.Name, top.Digest.ID)
						score = strconv.FormatFloat(top.Score, 'f', 3, 64)
					}
					rows = append(rows, []string{
						item.Key,
						stateLabel(item.State, color),
						item.Entry.Title,
						strconv.Itoa(len(item.Candidates)),
						best,
						score,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Entry", "State", "Title", "Candidates", "Best match", "Score"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
					color,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Library owner")
	return cmd
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-run resolution for a user's backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(user); err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Reconcile(cmd.Context(), user)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				r := resp.Report
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Transition", "Entries"},
					[][]string{
						{"Backlog total", strconv.Itoa(r.Total)},
						{"Unknown to resolved", strconv.Itoa(r.UnknownToResolved)},
						{"Approval to resolved", strconv.Itoa(r.ApprovalToResolved)},
						{"Unknown to approval", strconv.Itoa(r.UnknownToApproval)},
						{"Approval to unknown", strconv.Itoa(r.ApprovalToUnknown)},
						{"No change", strconv.Itoa(r.NoChange)},
						{"Errors", strconv.Itoa(r.Errors)},
						{"Changed by hand", strconv.Itoa(r.Superseded)},
						{"Newly resolved", strconv.Itoa(resp.NewlyResolved)},
						{"Still unresolved", strconv.Itoa(resp.StillUnresolved)},
						{"Duration (ms)", strconv.FormatInt(resp.DurationMillis, 10)},
					},
					[]columnAlignment{alignLeft, alignRight},
					colorEnabled(cmd),
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Library owner")
	return cmd
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	var user, key string
	var gameID int64

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Resolve a queued entry to a chosen catalog game",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(user); err != nil {
				return err
			}
			if strings.TrimSpace(key) == "" || gameID <= 0 {
				return errors.New("--entry and a positive --game are required")
			}
			return ctx.withClient(func(client *api.Client) error {
				entry, err := client.Approve(cmd.Context(), user, key, gameID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s approved as %s (%d)\n", entry.Entry.Key(), entry.Digest.Name, entry.Digest.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Library owner")
	cmd.Flags().StringVar(&key, "entry", "", "Entry key (storefront:id)")
	cmd.Flags().Int64Var(&gameID, "game", 0, "Catalog game id")
	return cmd
}

func newUnmatchCommand(ctx *commandContext) *cobra.Command {
	var user, key string

	cmd := &cobra.Command{
		Use:   "unmatch",
		Short: "Move a resolved entry back to the unknown queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(user); err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Unmatch(cmd.Context(), user, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s unmatched\n", key)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Library owner")
	cmd.Flags().StringVar(&key, "entry", "", "Entry key (storefront:id)")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var user, key, storefront string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete an entry, or every entry from one storefront, from a user's library",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(user); err != nil {
				return err
			}
			if (key == "") == (storefront == "") {
				return errors.New("exactly one of --entry or --storefront is required")
			}
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				if key != "" {
					if err := client.Remove(cmd.Context(), user, key); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s removed\n", key)
					return nil
				}
				sf, err := documents.ParseStorefront(storefront)
				if err != nil {
					return err
				}
				resp, err := client.RemoveStorefront(cmd.Context(), user, sf)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(out, "Removed %d %s entries\n", resp.Removed, resp.Storefront)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Library owner")
	cmd.Flags().StringVar(&key, "entry", "", "Entry key (storefront:id)")
	cmd.Flags().StringVar(&storefront, "storefront", "", "Remove every entry from this storefront")
	return cmd
}

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "library",
		Short: "List a user's resolved games",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(user); err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				lib, err := client.Library(cmd.Context(), user)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, lib)
				}
				out := cmd.OutOrStdout()
				if len(lib.Entries) == 0 {
					fmt.Fprintf(out, "No resolved entries for %s (%d unresolved)\n", user, lib.Unresolved.Len())
					return nil
				}
				rows := make([][]string, 0, len(lib.Entries))
				for _, e := range lib.Entries {
					year := ""
					if y := e.Digest.ReleaseYear(); y > 0 {
						year = strconv.Itoa(y)
					}
					rows = append(rows, []string{
						e.Entry.Key(),
						e.Digest.Name,
						strconv.FormatInt(e.Digest.ID, 10),
						year,
						yesNo(e.Manual),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Entry", "Game", "ID", "Year", "Manual"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
					colorEnabled(cmd),
				))
				fmt.Fprintf(out, "%d resolved, %d unresolved\n", len(lib.Entries), lib.Unresolved.Len())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Library owner")
	return cmd
}
