package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

// newRunCmd runs the engine in the foreground: it starts control loops
// for every project marked running and serves metrics until signalled.
func newRunCmd(newContainer containerFactory) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestration engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := c.Logger()

			addr := metricsAddr
			if addr == "" {
				addr = c.Config().Metrics.Addr
			}
			var metricsSrv *http.Server
			if addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", c.Metrics().Handler())
				metricsSrv = &http.Server{Addr: addr, Handler: mux}
				go func() {
					logger.Info("metrics listening", zap.String("addr", addr))
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", zap.Error(err))
					}
				}()
			}

			projects, err := c.ProjectService().List(cmd.Context())
			if err != nil {
				return err
			}
			started := 0
			for _, p := range projects {
				if p.Status() != project.StatusRunning {
					continue
				}
				if err := c.Supervisor().Resume(ctx, p.ID()); err != nil {
					logger.Warn("resume project failed",
						zap.String("project_id", p.ID().String()),
						zap.Error(err),
					)
					continue
				}
				started++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "engine running, %d project(s) resumed\n", started)

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			return c.Supervisor().Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus endpoint (overrides config)")
	return cmd
}
