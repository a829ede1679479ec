package cmd

import (
	"github.com/ichie-benjamin/market-pulse/internal/bootstrap"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the market data service",
	Long: `Serve starts the full pipeline: provider supervisors and pollers feed the
shared asset cache, the distribution hub fans changes out to websocket
subscribers, and the HTTP API answers queries and cache administration.`,
	Run: bootstrap.StartServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
