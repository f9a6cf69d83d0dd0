package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/higherself-ai/higherself/internal/server"
	"github.com/higherself-ai/higherself/pkg/observability"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat proxy HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, port int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	completer, err := buildCompleter(cfg)
	if err != nil {
		return err
	}

	observability.InitMetrics()
	health := observability.NewHealthChecker()
	health.RegisterCheck(&observability.HealthCheck{
		Name:      "ping",
		CheckFunc: func(ctx context.Context) error { return nil },
	})

	srv := server.New(server.Options{
		Port:          cfg.Port,
		CORSOrigin:    cfg.CORSOrigin,
		RatePerMinute: cfg.RateLimit.PerMinute,
		RateBurst:     cfg.RateLimit.Burst,
		Composer:      buildComposer(cfg),
		Completer:     completer,
		Health:        health,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	log.Printf("Server running on port %d", cfg.Port)
	return srv.Run(ctx)
}
