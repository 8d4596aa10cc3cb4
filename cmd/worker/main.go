package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetgrid/webhooks/config"
	"github.com/fleetgrid/webhooks/webhook"
	"github.com/fleetgrid/webhooks/webhook/postgres"
	"github.com/fleetgrid/webhooks/webhook/redis"
	"golang.org/x/sync/errgroup"
)

/* The dispatch worker process. It runs the retry scheduler and a pool of
 * dispatch workers consuming from the shared Redis stream. Multiple
 * instances of this process may run side by side; the claim in the
 * delivery store keeps each delivery with at most one worker.
 */

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

	backoff := webhook.Backoff{
		Base:   cfg.BackoffBase(),
		Max:    cfg.BackoffMax(),
		Jitter: cfg.BackoffJitter,
	}
	dispatcher := webhook.NewDispatcher(repo, repo, cfg.DispatchTimeout(), backoff)

	scheduler := webhook.NewScheduler(repo, queue, webhook.SchedulerConfig{
		PollInterval: cfg.RetryPollInterval(),
		ClaimTTL:     cfg.ClaimTTL(),
	})
	if err := scheduler.Start(ctx); err != nil {
		fmt.Println(err)
		return
	}
	defer scheduler.Stop()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		id := fmt.Sprintf("%s-%d", hostname, i)
		w := webhook.NewWorker(id, queue, dispatcher, queue)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	fmt.Printf("Dispatching with %d worker(s)\n", cfg.Workers)
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Println(err)
		return
	}
	fmt.Printf("\nShutting down workers...\n")
}
