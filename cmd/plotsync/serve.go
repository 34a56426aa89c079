package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/plotsync/plotsync/internal/config"
	"github.com/plotsync/plotsync/internal/debug"
	"github.com/plotsync/plotsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupTools,
	Short:   "Serve the HTTP API",
	Long: `Serve projects and sync over a JSON HTTP API, with a websocket stream of
import progress at /api/ws/progress.

Settings come from serve.addr and serve.cors_origins. A .env file in the
working directory is loaded first.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = config.GetServeAddr()
		}

		engine := newEngine()
		engine.OnMessage = nil
		engine.OnWarning = nil

		srv := server.New(engine, server.Options{
			CORSOrigins:     config.GetCORSOrigins(),
			ReviewThreshold: config.GetReviewThreshold(),
			Logger:          debug.Logger().With("actor", actor),
		})
		debug.PrintNormal("Serving on http://%s (Ctrl+C to stop)\n", addr)
		if err := srv.ListenAndServe(rootCtx, addr); err != nil {
			FatalError("serve: %v", err)
		}
	},
}

// loadDotEnv reads ./.env into the environment without overriding
// variables that are already set.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		WarnError("load .env: %v", err)
	}
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: serve.addr, 127.0.0.1:7420)")
	rootCmd.AddCommand(serveCmd)
}
