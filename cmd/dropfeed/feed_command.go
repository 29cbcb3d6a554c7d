package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed <user-id>",
		Short: "Show the cached feed for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			feed, err := a.reader.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if feed.Fallback {
				fmt.Fprintf(out, "No cached ranking for %s, showing recent content\n", feed.UserID)
			}
			if len(feed.Entries) == 0 {
				fmt.Fprintln(out, "Feed is empty")
				return nil
			}

			rows := make([][]string, 0, len(feed.Entries))
			for _, e := range feed.Entries {
				rows = append(rows, []string{
					strconv.Itoa(e.Position),
					e.ItemID,
					strconv.FormatFloat(e.FinalScore, 'f', 4, 64),
					e.Reason,
					e.ExpiresAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Item", "Score", "Reason", "Expires"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	return cmd
}
