package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"processhub_backend/internal/email"
	"processhub_backend/platform/config"
	"processhub_backend/platform/logger"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	delivery *MagicLinkDelivery
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sender email.Sender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(NewMagicLinkDelivery(nil, sender, log), log)
	w.server = server
	return w, nil
}

func newWorker(delivery *MagicLinkDelivery, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{mux: mux, delivery: delivery, log: log}
	mux.HandleFunc(TaskMagicLinkDelivery, w.handleMagicLinkDelivery)
	return w
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
}

func (w *Worker) handleMagicLinkDelivery(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMagicLinkDeliveryPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.delivery.send(ctx, payload)
}
