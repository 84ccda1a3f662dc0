package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"wacrm/internal/config"
	"wacrm/internal/domain"
	"wacrm/internal/httpapi"
	"wacrm/internal/logging"
	"wacrm/internal/observability"
	"wacrm/internal/providers/whatsapp"
	"wacrm/internal/store/pg"
	workerproc "wacrm/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat)

	pollInterval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		slog.Error("invalid POLL_INTERVAL", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	graph := &whatsapp.Client{
		BaseURL:    cfg.GraphBaseURL,
		APIVersion: cfg.GraphAPIVersion,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
	sendHandler := &workerproc.SendTemplateHandler{
		Sender:  graph,
		Limiter: rate.NewLimiter(rate.Limit(cfg.SendRPS), cfg.SendBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "whatsapp",
			MaxRequests: 3,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		}),
		Timeout: 30 * time.Second,
	}

	scheduler := &workerproc.Scheduler{
		Guard: &workerproc.Guard{},
		Runner: &workerproc.Runner{
			Store: store,
			Processor: &workerproc.Processor{
				Store: store,
				Handlers: map[domain.ActionType]workerproc.Handler{
					domain.ActionSendTemplateMessage: sendHandler.Handle,
				},
			},
			BatchSize: cfg.BatchSize,
		},
	}

	// health server (liveness + readiness)
	router := httpapi.NewRouter()
	router.HandleFunc("/healthz", httpapi.Healthz())
	router.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(c context.Context) error {
		return db.Ping(c)
	}))

	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(router),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	tickDone := make(chan struct{})
	go func() {
		slog.Info("worker drain loop starting", "interval", pollInterval)
		scheduler.Start(ctx, pollInterval)
		close(tickDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-tickDone:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for drain loop")
	}
}
