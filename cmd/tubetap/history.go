package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/000Volk000/TubeTap/internal/history"
)

func (a *application) historyCommand() *cli.Command {
	return &cli.Command{
		Name:         "history",
		Usage:        "list recorded downloads",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print records as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			return a.withHistory(c, func(store history.Store) error {
				records, err := store.List()
				if err != nil {
					return failure("failed to read history: %v", err)
				}
				if c.Bool("json") {
					if records == nil {
						records = []history.Record{}
					}
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}
				w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tSTARTED\tKIND\tQUALITY\tRESULT\tURL")
				for _, r := range records {
					result := r.Path
					if !r.Success {
						result = "failed: " + r.Error
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.StartedAt.Local().Format(time.DateTime), r.Kind, r.Quality, result, r.URL)
				}
				return w.Flush()
			})
		},
		Subcommands: []*cli.Command{
			{
				Name:         "delete",
				Usage:        "remove recorded downloads",
				ArgsUsage:    "ID...",
				OnUsageError: onUsageError,
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return usageError("expected at least one ID")
					}
					return a.withHistory(c, func(store history.Store) error {
						for _, id := range c.Args().Slice() {
							if err := store.Delete(id); errors.Is(err, history.ErrNotFound) {
								return failure("no history record %s", id)
							} else if err != nil {
								return failure("failed to delete %s: %v", id, err)
							}
						}
						return nil
					})
				},
			},
		},
	}
}

func (a *application) withHistory(c *cli.Context, f func(history.Store) error) error {
	if c.String("history") == "" {
		return usageError("no history database; set --history or TUBETAP_HISTORY")
	}
	store, err := a.openHistory(c)
	if err != nil {
		return err
	}
	defer store.Close()
	return f(store)
}
