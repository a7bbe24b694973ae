package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/config"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/coord"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/logging"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/metrics"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/pipeline"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

func serveCmd(e *env) *cobra.Command {
	var (
		addr  string
		every time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and the latest report over HTTP",
		Long: `Serve Prometheus metrics and the latest run as JSON.

  GET /metrics       Prometheus exposition
  GET /report.json   Latest run
  GET /runs.json     Run history (?limit=N, default 20)
  GET /healthz       Liveness

With --every, fetch feeds and run a batch on that interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = e.cfg.MetricsAddr
			}
			st, err := e.openDB()
			if err != nil {
				return err
			}
			defer st.Close()

			m := metrics.New()
			eng, err := e.engine(m, false)
			if err != nil {
				return err
			}
			c, err := e.coordinator(st, m)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{Addr: addr, Handler: newRouter(st, m), ReadHeaderTimeout: 5 * time.Second}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logging.Info("serving", "addr", addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if every > 0 {
				g.Go(func() error {
					collectLoop(ctx, e, st, eng, c, every)
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: metrics_addr from config)")
	cmd.Flags().DurationVar(&every, "every", 0, "Fetch feeds and run a batch on this interval (e.g. 30m)")
	return cmd
}

// collectLoop fetches feeds and runs a batch immediately and then every
// interval until ctx is cancelled.
func collectLoop(ctx context.Context, e *env, st *store.Store, eng *pipeline.Engine, c *coord.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.FetchAll(ctx)
		if ctx.Err() != nil {
			return
		}
		if _, err := runBatch(st, eng, e.cfg.Windows, batchOptions{}); err != nil {
			logging.Error("scheduled run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// newRouter serves the metrics registry and the stored runs.
func newRouter(st *store.Store, m *metrics.Metrics) *gin.Engine {
	if config.GetEnv("GIN_MODE", gin.ReleaseMode) == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok\n")
	})
	router.GET("/report.json", func(c *gin.Context) {
		run, err := st.LatestRun()
		if err != nil {
			logging.Error("load latest run", "error", err)
			c.String(http.StatusInternalServerError, "failed to load run")
			return
		}
		if run == nil {
			c.String(http.StatusNotFound, "no run recorded")
			return
		}
		c.JSON(http.StatusOK, run)
	})
	router.GET("/runs.json", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit <= 0 {
			c.String(http.StatusBadRequest, "invalid limit")
			return
		}
		runs, err := st.RunSummaries(limit)
		if err != nil {
			logging.Error("load run history", "error", err)
			c.String(http.StatusInternalServerError, "failed to load runs")
			return
		}
		if runs == nil {
			runs = []store.RunSummary{}
		}
		c.JSON(http.StatusOK, runs)
	})
	return router
}

// requestLogger logs each request at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}
