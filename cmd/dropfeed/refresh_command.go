package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rushteam/dropfeed/engine"
)

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var users []string
	var force bool
	var trigger string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one ranking batch and print the summary",
		Long: "Run one ranking batch in-process. Without --user every known user is processed\n" +
			"and users whose cache is still valid are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := engine.Trigger{
				Kind:              engine.TriggerKind(trigger),
				UserIDs:           users,
				ForceRegeneration: force,
			}
			if !t.Kind.Valid() {
				return fmt.Errorf("unknown trigger %q (manual, onboarding_completed, scheduled)", trigger)
			}

			a, err := ctx.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.Run(cmd.Context(), t)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"run_id", res.RunID},
				{"trigger", string(res.Trigger)},
				{"processed", strconv.Itoa(res.ProcessedUsers)},
				{"regenerated", strconv.Itoa(res.CacheRegenerated)},
				{"preserved", strconv.Itoa(res.CachePreserved)},
				{"restored", strconv.Itoa(res.CacheRestored)},
				{"failed", strconv.Itoa(res.FailedUsers)},
				{"skipped", strconv.Itoa(res.SkippedUsers)},
				{"entries_written", strconv.Itoa(res.CacheEntriesWritten)},
				{"duration", res.Duration.Round(time.Millisecond).String()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&users, "user", "u", nil, "User id to refresh (repeatable)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Regenerate even when the cache is valid")
	cmd.Flags().StringVar(&trigger, "trigger", string(engine.TriggerManual), "Trigger kind: manual, onboarding_completed, scheduled")
	return cmd
}
