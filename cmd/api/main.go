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
	"wacrm/internal/service"
	"wacrm/internal/store/pg"
	workerproc "wacrm/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}
	store := pg.New(db)

	observability.Register(prometheus.DefaultRegisterer)

	graph := &whatsapp.Client{
		BaseURL:    cfg.GraphBaseURL,
		APIVersion: cfg.GraphAPIVersion,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}

	svc := &service.CRMService{Store: store, Graph: graph}

	sendHandler := &workerproc.SendTemplateHandler{
		Sender:  graph,
		Limiter: rate.NewLimiter(rate.Limit(cfg.SendRPS), cfg.SendBurst),
		Breaker: newBreaker(),
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

	router := httpapi.NewRouter()
	api := &httpapi.API{
		Svc:          svc,
		Scheduler:    scheduler,
		TriggerToken: cfg.TriggerToken,
	}
	api.Register(router)

	router.HandleFunc("/healthz", httpapi.Healthz())
	router.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(router),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp",
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})
}
