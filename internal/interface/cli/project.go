package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/StatsAiGuy/exeflow/internal/application/usecase/orchestrate"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/di"
)

func newProjectCmd(newContainer containerFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newProjectCreateCmd(newContainer))
	cmd.AddCommand(newProjectListCmd(newContainer))
	cmd.AddCommand(newProjectStatusCmd(newContainer))
	cmd.AddCommand(newProjectStartCmd(newContainer))
	cmd.AddCommand(newProjectPauseCmd(newContainer))
	cmd.AddCommand(newProjectResumeCmd(newContainer))
	cmd.AddCommand(newProjectStopCmd(newContainer))
	return cmd
}

func newProjectCreateCmd(newContainer containerFactory) *cobra.Command {
	var workDir string
	var planFile string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a project with its initial plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			var planYAML []byte
			if planFile != "" {
				planYAML, err = os.ReadFile(planFile)
				if err != nil {
					return fmt.Errorf("read plan file: %w", err)
				}
			}

			proj, err := c.ProjectService().Create(cmd.Context(), args[0], workDir, planYAML)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created project %s (%s)\n", proj.Name(), proj.ID())
			return nil
		},
	}
	cmd.Flags().StringVar(&workDir, "workdir", ".", "directory the agent works in")
	cmd.Flags().StringVar(&planFile, "plan", "", "YAML plan file")
	return cmd
}

func newProjectListCmd(newContainer containerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			projects, err := c.ProjectService().List(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %s\n", p.ID(), p.Status(), p.Name())
			}
			return nil
		},
	}
}

func newProjectStatusCmd(newContainer containerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show a project's execution state",
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
			status, err := c.ProjectService().Status(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project:  %s (%s)\n", status.Project.Name(), status.Project.ID())
			fmt.Fprintf(out, "Status:   %s\n", status.Project.Status())
			fmt.Fprintf(out, "State:    %s\n", status.State.State)
			fmt.Fprintf(out, "Cycle:    %d\n", status.State.CycleNumber)
			if status.PlanSummary != "" {
				fmt.Fprintf(out, "Plan:\n%s\n", status.PlanSummary)
			}
			if len(status.Pending) > 0 {
				fmt.Fprintf(out, "Pending checkpoints:\n")
				for _, cp := range status.Pending {
					fmt.Fprintf(out, "  %s [%s] %s\n", cp.ID(), cp.Type(), cp.Question())
				}
			}
			return nil
		},
	}
}

// runForeground drives one project's loop in this process until it
// completes, pauses, or a signal arrives.
func runForeground(ctx context.Context, c *di.Container, id project.ID, start func(context.Context, project.ID) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := start(ctx, id); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		c.Supervisor().Wait(id)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Supervisor().Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func newProjectStartCmd(newContainer containerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "start <project-id>",
		Short: "Start a project's control loop in the foreground",
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
			if err := runForeground(cmd.Context(), c, id, c.Supervisor().Start); err != nil {
				return err
			}
			return printFinalState(cmd, c, id)
		},
	}
}

func newProjectResumeCmd(newContainer containerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <project-id>",
		Short: "Resume a paused project in the foreground",
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
			if err := runForeground(cmd.Context(), c, id, c.Supervisor().Resume); err != nil {
				return err
			}
			return printFinalState(cmd, c, id)
		},
	}
}

func newProjectPauseCmd(newContainer containerFactory) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "pause <project-id>",
		Short: "Pause a project at the next iteration boundary",
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

			err = c.Supervisor().Pause(cmd.Context(), id, reason)
			if errors.Is(err, orchestrate.ErrLoopNotRunning) {
				// No loop in this process: pause the durable state directly
				return pauseStoredState(cmd, c, id, reason)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pause requested")
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the project is being paused")
	return cmd
}

func newProjectStopCmd(newContainer containerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <project-id>",
		Short: "Stop a project and abandon its execution",
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
			if err := c.Supervisor().Stop(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "project stopped")
			return nil
		},
	}
}

func pauseStoredState(cmd *cobra.Command, c *di.Container, id project.ID, reason string) error {
	status, err := c.ProjectService().Status(cmd.Context(), id)
	if err != nil {
		return err
	}
	state := status.State
	if state.State.IsTerminal() {
		return fmt.Errorf("project is %s", state.State)
	}
	if state.State.IsPaused() {
		fmt.Fprintf(cmd.OutOrStdout(), "project already paused (%s)\n", state.State)
		return nil
	}
	if err := c.ProjectService().PauseStored(cmd.Context(), id, reason); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "project paused")
	return nil
}

func printFinalState(cmd *cobra.Command, c *di.Container, id project.ID) error {
	status, err := c.ProjectService().Status(cmd.Context(), id)
	if err != nil {
		return err
	}
	state := status.State.State
	fmt.Fprintf(cmd.OutOrStdout(), "final state: %s\n", state)
	if state == execution.StatePausedAwaitingInput && len(status.Pending) > 0 {
		for _, cp := range status.Pending {
			fmt.Fprintf(cmd.OutOrStdout(), "awaiting answer: %s [%s] %s\n", cp.ID(), cp.Type(), cp.Question())
		}
	}
	return nil
}
