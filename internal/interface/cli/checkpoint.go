package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/checkpoint"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

func newCheckpointCmd(newContainer containerFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect and answer human-input requests",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newCheckpointListCmd(newContainer))
	cmd.AddCommand(newCheckpointAnswerCmd(newContainer))
	return cmd
}

func newCheckpointListCmd(newContainer containerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List pending checkpoints, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			id, err := project.ParseID(args[0])
			if err != nil {
				return err
			}
			pending, err := c.CheckpointService().ListPending(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending checkpoints")
				return nil
			}
			for _, cp := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", cp.ID(), cp.Type(), cp.Question())
				if cp.Context() != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  context: %s\n", cp.Context())
				}
			}
			return nil
		},
	}
}

func newCheckpointAnswerCmd(newContainer containerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <checkpoint-id> <response...>",
		Short: "Answer a pending checkpoint",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			id, err := checkpoint.ParseID(args[0])
			if err != nil {
				return err
			}
			response := strings.Join(args[1:], " ")

			cp, err := c.ProjectService().AnswerCheckpoint(cmd.Context(), id, response)
			if err != nil {
				return err
			}
			if cp == nil {
				return fmt.Errorf("checkpoint %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "answered; resume project %s to continue\n", cp.ProjectID())
			return nil
		},
	}
}
