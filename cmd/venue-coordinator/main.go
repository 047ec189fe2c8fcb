package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"venue-system/internal/auth"
	"venue-system/internal/config"
	"venue-system/internal/coordinator"
	"venue-system/internal/httpx"
	"venue-system/internal/intake"
	"venue-system/internal/logger"
	"venue-system/internal/metrics"
	"venue-system/internal/notify"
	"venue-system/internal/storage"
	"venue-system/internal/ws"
)

func main() {
	cfgPath := flag.String("config", "", "path to config.yaml (probed if empty)")
	port := flag.Int("port", 0, "override server port")
	flag.Parse()

	lg := logger.New("bootstrap")
	defer lg.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, lg, *cfgPath, *port); err != nil {
		lg.Error("fatal", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *zap.Logger, cfgPath string, port int) error {
	if cfgPath == "" {
		p, err := config.Find()
		if err != nil {
			return fmt.Errorf("no config file found, pass -config")
		}
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	pool, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := storage.New(pool, logger.New("storage"))
	if err := store.Ensure(ctx); err != nil {
		return err
	}

	met := metrics.New()
	reg := prometheus.NewRegistry()
	met.Register(reg)

	var pager notify.Pager = notify.Disabled{}
	if cfg.RabbitMQ.Host != "" {
		p, err := notify.Dial(cfg.RabbitMQ.URL(), cfg.Notifications.Channels, logger.New("notify"), met)
		if err != nil {
			return fmt.Errorf("rabbitmq dial: %w", err)
		}
		defer p.Close()
		pager = p
	} else {
		lg.Warn("paging_disabled_no_rabbitmq")
	}

	registry := ws.NewRegistry(met)
	router := ws.NewRouter(logger.New("router"), met)
	coord := coordinator.New(store, router, pager, logger.New("coordinator"), met)

	go coord.RunReconciliation(ctx, time.Duration(cfg.Coordinator.ReconcileSeconds)*time.Second)

	verifier := auth.NewPG(pool)
	wsHandler := ws.NewHandler(verifier, registry, router, coord, logger.New("ws"))
	go wsHandler.RunHeartbeat(ctx, time.Duration(cfg.Server.HeartbeatSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	intake.NewHandler(store, coord, logger.New("intake")).Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/reconcile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := coord.Reconcile(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	lg.Info("service_started", zap.Int("port", cfg.Server.Port))
	return httpx.New(":"+strconv.Itoa(cfg.Server.Port), mux).Run(ctx)
}
