package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"studygraph/internal/activities"
	"studygraph/internal/config"
	"studygraph/internal/logger"
	"studygraph/internal/metrics"
	"studygraph/internal/storage"
	"studygraph/internal/workflows"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.New(reg)
	if err != nil {
		lg.Error("register metrics", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := storage.Open(ctx, cfg.StoreOptions(), lg)
	if err != nil {
		lg.Error("open graph store", "store", cfg.Store, "error", err)
		return
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := store.Close(closeCtx); err != nil {
			lg.Warn("close graph store", "error", err)
		}
	}()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    lg.With("component", "temporal"),
	})
	if err != nil {
		lg.Error("dial temporal", "address", cfg.TemporalAddress, "error", err)
		return
	}
	defer c.Close()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Warn("metrics listener stopped", "addr", cfg.MetricsAddr, "error", err)
		}
	}()
	defer metricsSrv.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, store, rec, lg))

	lg.Info("studygraph worker listening", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue, "store", cfg.Store, "metrics_addr", cfg.MetricsAddr)
	if err := w.Run(worker.InterruptCh()); err != nil {
		lg.Error("worker stopped", "error", err)
	}
}
