package main

import (
	"log"
	"net/http"
	"time"

	"studygraph/internal/api"
	"studygraph/internal/config"
	"studygraph/internal/logger"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	tclient "go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	lg, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	tc, err := tclient.Dial(tclient.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    lg.With("component", "temporal"),
	})
	if err != nil {
		lg.Error("dial temporal", "address", cfg.TemporalAddress, "error", err)
		return
	}
	defer tc.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := api.NewServer(cfg, tc, reg, lg)
	srv := &http.Server{Addr: cfg.APIAddr, Handler: h.Routes(), ReadHeaderTimeout: 10 * time.Second}
	lg.Info("studygraph api listening", "addr", cfg.APIAddr, "queue", cfg.TemporalTaskQueue)
	if err := srv.ListenAndServe(); err != nil {
		lg.Error("api stopped", "error", err)
	}
}
