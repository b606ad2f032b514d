package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errNoDeadLetterStore = errors.New("dead letters need DATABASE_URL and ENCRYPTION_KEY")

// deadLettersCmd is the parent command for dead-letter operations.
var deadLettersCmd = &cobra.Command{
	Use:     "deadletters",
	Aliases: []string{"dlq"},
	Short:   "Inspect and replay dead-lettered messages",
}

var deadLettersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the newest dead letters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if application.DeadLetters == nil {
			return errNoDeadLetterStore
		}
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := application.DeadLetters.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), list)
		}
		printDeadLetterTable(cmd.OutOrStdout(), list)
		return nil
	},
}

var deadLettersReplayCmd = &cobra.Command{
	Use:   "replay <id>",
	Short: "Republish a dead letter to its original queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if application.DeadLetters == nil {
			return errNoDeadLetterStore
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid dead letter id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		dl, err := application.DeadLetters.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if dl == nil {
			return fmt.Errorf("dead letter %s not found", id)
		}

		if err := application.Bus.Replay(ctx, dl); err != nil {
			return err
		}
		keep, _ := cmd.Flags().GetBool("keep")
		if !keep {
			if err := application.DeadLetters.Delete(ctx, id); err != nil {
				return fmt.Errorf("replayed but could not delete %s: %w", id, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Replayed %s (%s)\n", id, dl.EventName)
		return nil
	},
}

func init() {
	deadLettersListCmd.Flags().Int("limit", 20, "maximum number of records")
	deadLettersReplayCmd.Flags().Bool("keep", false, "keep the record after replaying")

	deadLettersCmd.AddCommand(deadLettersListCmd)
	deadLettersCmd.AddCommand(deadLettersReplayCmd)
}
