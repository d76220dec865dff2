// Command refactorctl is the CLI client for refactord's Public HTTP
// Surface: project lifecycle, container operations, and agent runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	serverURL string
	authToken string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "refactorctl",
		Short:   "Control-plane CLI for provisioning sandboxed refactor agents",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getDefaultServer(), "Control plane server URL")
	rootCmd.PersistentFlags().StringVarP(&authToken, "token", "t", os.Getenv("REFACTORCTL_TOKEN"), "Bearer token")

	rootCmd.AddCommand(newProjectCommand())
	rootCmd.AddCommand(newContainerCommand())
	rootCmd.AddCommand(newAgentCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getDefaultServer() string {
	if s := os.Getenv("REFACTORCTL_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}
