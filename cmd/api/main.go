package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetgrid/webhooks/config"
	"github.com/fleetgrid/webhooks/events"
	"github.com/fleetgrid/webhooks/internal/http/chi"
	"github.com/fleetgrid/webhooks/metrics"
	"github.com/fleetgrid/webhooks/webhook"
	"github.com/fleetgrid/webhooks/webhook/postgres"
	"github.com/fleetgrid/webhooks/webhook/redis"
)

const TIMEOUT = 30 * time.Second

/* The management API process. It wires the storage and queue layers into
 * the webhook service and exposes the endpoint/delivery/event routes.
 * Dispatch itself runs in cmd/worker; this process only records
 * deliveries and enqueues their ids.
 */

// workerStats adapts the redis heartbeat records to the collector's view
type workerStats struct {
	queue *redis.Queue
}

func (s workerStats) ActiveWorkers(ctx context.Context) ([]metrics.WorkerInfo, error) {
	hbs, err := s.queue.ActiveWorkers(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]metrics.WorkerInfo, 0, len(hbs))
	for _, hb := range hbs {
		infos = append(infos, metrics.WorkerInfo{
			WorkerID:      hb.WorkerID,
			Status:        hb.Status,
			LastHeartbeat: hb.LastHeartbeat,
		})
	}
	return infos, nil
}

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		fmt.Println(err)
		return
	}
	repo, err := postgres.NewRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close()

	queue, err := redis.NewQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer queue.Close()

	catalog := events.Default()
	if cfg.CatalogFile != "" {
		if err := catalog.LoadFile(cfg.CatalogFile); err != nil {
			fmt.Println(err)
			return
		}
	}

	router := webhook.NewRouter(repo, repo, queue, catalog, cfg.MaxAttempts)
	s := webhook.NewService(repo, repo, queue, router, catalog, cfg.MaxAttempts)

	collector := metrics.NewStoreCollector(repo, queue, workerStats{queue: queue})
	exporter, err := metrics.NewOTelExporter(collector)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer exporter.Shutdown(context.Background())

	r := chi.Handlers(s, router, catalog, exporter.ServeHTTP())
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
