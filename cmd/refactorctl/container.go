package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newContainerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Inspect and operate on project containers",
	}
	cmd.AddCommand(newContainerLogsCommand())
	cmd.AddCommand(newContainerExecCommand())
	cmd.AddCommand(newContainerTreeCommand())
	cmd.AddCommand(newContainerCatCommand())
	return cmd
}

func newContainerLogsCommand() *cobra.Command {
	var tailLines int
	cmd := &cobra.Command{
		Use:   "logs <project-id>",
		Short: "Follow a project's container logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/projects/%s/logs/stream?tail=%d", args[0], tailLines)
			return newClient().streamSSE(path)
		},
	}
	cmd.Flags().IntVar(&tailLines, "tail", 200, "Number of historical lines to include")
	return cmd
}

func newContainerExecCommand() *cobra.Command {
	var workdir string
	cmd := &cobra.Command{
		Use:   "exec <project-id> -- <argv...>",
		Short: "Run a command inside a project's container (admin/debug)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().post("/projects/"+args[0]+"/exec", map[string]interface{}{
				"argv":    args[1:],
				"workdir": workdir,
			})
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&workdir, "workdir", "", "Working directory inside the container")
	return cmd
}

func newContainerTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <project-id>",
		Short: "Show the project's workspace file tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().get("/projects/"+args[0]+"/files/tree", nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

func newContainerCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <project-id> <path>",
		Short: "Print a file from the project's workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string][]string{"path": {args[1]}}
			out, err := newClient().get("/projects/"+args[0]+"/files/content", params)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

