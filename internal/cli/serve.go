package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/terminus/internal/server"
)

var (
	serveTransport string
	serveAddr      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the glossary as MCP tools",
	Long: `Serve exposes lookup, review, extraction and candidate management as MCP
tools, over stdio (for local clients) or streamable HTTP.

Example:
  terminus serve
  terminus serve --transport http --addr :8081`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		// The server runs until interrupted, not for --timeout
		srv := server.New(s.runtime.Orchestrator, Version, s.logger.Named("mcp"))
		return server.Serve(cmd.Context(), srv, serveTransport, serveAddr, s.logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveTransport, "transport", server.TransportStdio, "transport: stdio or http")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8081", "listen address for the http transport")
}
