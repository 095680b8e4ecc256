package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

func newEventsCmd(newContainer containerFactory) *cobra.Command {
	var sinceID int64
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "events <project-id>",
		Short: "Replay a project's durable event log",
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
			events, err := c.ProjectService().Events(cmd.Context(), id, sinceID, limit)
			if err != nil {
				return err
			}

			for _, ev := range events {
				if jsonOutput {
					line, merr := json.Marshal(ev)
					if merr != nil {
						return merr
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(line))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-6d %s  %-22s %v\n",
					ev.ID, ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Payload)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&sinceID, "since", 0, "replay events after this id")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum events to print")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print events as JSON lines")
	return cmd
}
