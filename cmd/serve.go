package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nikogura/cv-tailor/pkg/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listenAddress string

//nolint:gochecknoglobals // Cobra boilerplate
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tailoring API over HTTP",
	Long: `Starts an HTTP API using the configured provider.

Endpoints:
  GET  /api/v1/health
  POST /api/v1/tailor   {"cv": {...}, "jobDescription": "..."} or {"cv": {...}, "job": {...}}

Example:
  cv-tailor serve --listen :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddress, "listen", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	cfg, gateway, prompts, err := setupGateway()
	if err != nil {
		return err
	}

	if !getVerbose() {
		gin.SetMode(gin.ReleaseMode)
	}

	var srv *server.Server
	srv, err = server.New(gateway, server.Options{
		Prompts:     prompts,
		Concurrency: cfg.Concurrency,
		Provider:    cfg.Provider,
		Model:       modelName(cfg),
		Logger:      logrus.StandardLogger(),
	})
	if err != nil {
		return err
	}

	addr := listenAddress
	if addr == "" {
		addr = cfg.Defaults.ListenAddress
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Serving %s API on %s\n", cfg.Provider, addr)

	err = srv.Run(ctx, addr)
	return err
}
