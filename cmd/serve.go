package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drmonteiro/brands-ai/internal/monitoring"
	"github.com/drmonteiro/brands-ai/internal/query"
	"github.com/drmonteiro/brands-ai/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with streaming pipeline endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store)
		checker := monitoring.NewChecker(
			monitoring.NewReaper(env.Store, env.Store, threadTTL(), env.Metrics),
			collector,
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		deps := server.Deps{
			Pipeline:      env.Executor,
			Query:         query.NewService(env.Store, env.Store),
			Runs:          env.Store,
			Stats:         collector,
			Cache:         env.Cache,
			Gatherer:      env.Registry,
			LookbackHours: cfg.Monitoring.LookbackWindowHours,
		}
		if env.Notifier != nil {
			deps.Notifier = env.Notifier
		}
		return server.New(cfg.Server, deps).ListenAndServe(ctx, cfg.Server.Port)
	},
}

// threadTTL is how long a suspended run may wait for a decision. Zero
// disables reaping.
func threadTTL() time.Duration {
	return time.Duration(cfg.Monitoring.ThreadTTLHours) * time.Hour
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides config server.port)")
	rootCmd.AddCommand(serveCmd)
}
