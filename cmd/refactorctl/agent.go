package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start, inspect, and stream agent runs",
	}
	cmd.AddCommand(newAgentRunCommand())
	cmd.AddCommand(newAgentListCommand())
	cmd.AddCommand(newAgentStatusCommand())
	cmd.AddCommand(newAgentStopCommand())
	cmd.AddCommand(newAgentStreamCommand())
	cmd.AddCommand(newAgentResetSessionCommand())
	return cmd
}

func newAgentRunCommand() *cobra.Command {
	var spec, model string
	cmd := &cobra.Command{
		Use:   "run <project-id>",
		Short: "Start a new agent run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().post("/projects/"+args[0]+"/agent/run", map[string]string{
				"spec":  spec,
				"model": model,
			})
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "spec", "", "Refactoring instruction for this run")
	cmd.Flags().StringVar(&model, "model", "", "Model override")
	return cmd
}

func newAgentListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <project-id>",
		Short: "List agent runs for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().get("/projects/"+args[0]+"/agent/runs", nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

func newAgentStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id> <run-id>",
		Short: "Show a single run's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().get("/projects/"+args[0]+"/agent/runs/"+args[1], nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

func newAgentStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <project-id> <run-id>",
		Short: "Stop a running agent run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newClient().post("/projects/"+args[0]+"/agent/runs/"+args[1]+"/stop", nil); err != nil {
				return err
			}
			fmt.Printf("stopped run %s\n", args[1])
			return nil
		},
	}
}

func newAgentStreamCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <project-id> <run-id>",
		Short: "Stream a run's events as they happen",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().streamSSE("/projects/" + args[0] + "/agent/runs/" + args[1] + "/stream")
		},
	}
}

func newAgentResetSessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-session <project-id>",
		Short: "Clear a project's agent conversation thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().post("/projects/"+args[0]+"/agent/reset-session", nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}
