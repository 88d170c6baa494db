package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperterse/fanout/core/infrastructure/di"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
	httptransport "github.com/hyperterse/fanout/core/infrastructure/transport/http"
	"github.com/hyperterse/fanout/core/infrastructure/transport/http/middleware"
	"github.com/hyperterse/fanout/core/observability"
)

var servePort int

// serveCmd exposes the engine over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the fan-out API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (overrides config and FANOUT_PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logging.New("serve")
	if servePort > 0 {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.Setup(ctx, cfg.Observability, GetVersion())
	if err != nil {
		return logging.WithTag("observability", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Warnf("Error flushing telemetry: %v", err)
		}
	}()

	return withContainer(ctx, func(c *di.Container) error {
		opts := httptransport.RouteOptions{RateLimit: cfg.RateLimit}
		if c.Redis != nil {
			opts.Limiter = middleware.NewRedisRateLimiter(c.Redis.Client())
		} else if cfg.RateLimit > 0 {
			log.Warnf("rate_limit is set but no redis_url is configured; requests are not throttled")
		}

		server := httptransport.NewServer(cfg.Port)
		server.SetShutdownFunc(stop)
		httptransport.RegisterRoutes(server.Router(), c.Engine, opts)

		log.Infof("Serving %d connection(s)", len(c.Engine.ListConnections()))
		return server.Run(ctx)
	})
}
