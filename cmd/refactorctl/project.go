package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newProjectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(newProjectCreateCommand())
	cmd.AddCommand(newProjectListCommand())
	cmd.AddCommand(newProjectGetCommand())
	cmd.AddCommand(newProjectDeleteCommand())
	cmd.AddCommand(newProjectProvisionCommand())
	cmd.AddCommand(newProjectReprovisionCommand())
	cmd.AddCommand(newProjectStopCommand())
	return cmd
}

func newProjectCreateCommand() *cobra.Command {
	var title, description, kind, repoURL, branch, spec string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new project",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"title":        title,
				"description":  description,
				"project_type": kind,
				"repo_url":     repoURL,
				"branch":       branch,
				"spec":         spec,
			}
			out, err := newClient().post("/projects", body)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Project title")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	cmd.Flags().StringVar(&kind, "kind", "SANDBOX", "REFACTOR or SANDBOX")
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "Git repository URL (REFACTOR only)")
	cmd.Flags().StringVar(&branch, "branch", "main", "Git branch (REFACTOR only)")
	cmd.Flags().StringVar(&spec, "spec", "", "Refactoring instruction")
	return cmd
}

func newProjectListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().get("/projects", url.Values{})
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

func newProjectGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <project-id>",
		Short: "Show a project, including live container status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().get("/projects/"+args[0], nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

func newProjectDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and tear down its container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newClient().delete("/projects/" + args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newProjectProvisionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <project-id>",
		Short: "Provision a project's container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().post("/projects/"+args[0]+"/provision", nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

func newProjectReprovisionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reprovision <project-id>",
		Short: "Tear down and recreate a project's container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().post("/projects/"+args[0]+"/reprovision", nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

func newProjectStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <project-id>",
		Short: "Stop a project's container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().post("/projects/"+args[0]+"/stop", nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}
