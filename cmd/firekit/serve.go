package main

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/aretw0/firekit"
	"github.com/aretw0/firekit/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store over HTTP",
	Long: `Serve exposes the configured store as a JSON API under /v1, with a
server-sent events stream at /v1/collections/<c>/listen.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, cfg, err := openStore(ctx, cmd, firekit.WithWatch(true))
		if err != nil {
			return err
		}
		defer closeStore(store)

		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		srv := &server.Server{
			Addr:    addr,
			Handler: &server.Handler{Store: store, Logger: slog.Default()},
		}
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from firekit.toml, 127.0.0.1:8080)")
	rootCmd.AddCommand(serveCmd)
}
