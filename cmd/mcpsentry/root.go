package main

import (
	"context"

	"github.com/spf13/cobra"

	"mcpsentry/cmd/mcpsentry/run"
	"mcpsentry/cmd/mcpsentry/server"
)

func Execute() error {
	var rootCmd = &cobra.Command{
		Use:   "mcpsentry",
		Short: "A penetration-test orchestration engine for MCP tool servers",
		Long:  `mcpsentry discovers an MCP server's tools, prompts and resources, derives a bounded test plan, and executes deterministic security checks plus an optional autonomous red team against it`,
	}

	rootCmd.AddCommand(run.NewRunCommand())
	rootCmd.AddCommand(server.NewServerCommand())
	return rootCmd.ExecuteContext(context.Background())
}
