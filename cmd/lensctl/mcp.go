package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/legal-lens/internal/adapters/mcp"
	"github.com/kirillkom/legal-lens/internal/bootstrap"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start a Model Context Protocol server over stdio. It runs the same
document pipeline as the API (Ollama, caches, snapshot store), so the
configuration is read from the same environment.

Client configuration:
  {
    "mcpServers": {
      "legal-lens": {
        "command": "/path/to/lensctl",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	app, err := bootstrap.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))

	server, err := mcpadapter.NewServer(&mcpadapter.Ports{
		Uploader:  app.UploadUC,
		Query:     app.QueryUC,
		Explainer: app.ExplainUC,
		Summaries: app.SummaryUC,
		Risk:      app.RiskUC,
	})
	if err != nil {
		return err
	}
	return server.Serve(ctx, os.Stdin, cmd.OutOrStdout())
}
