package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"CloudKeep/config"
	"CloudKeep/internal/mq"
	"CloudKeep/internal/storage"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

// RunCleanupWorker consumes file.purged events and removes blob bytes from
// object storage. The record, cache and ledger were already settled by the
// purge; this only reclaims physical storage, so redelivery is harmless.
func RunCleanupWorker(ctx context.Context) error {
	client, err := mq.Dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.DeclareTopology(); err != nil {
		return err
	}

	if err := client.Channel.Qos(config.AppConfig.CleanupWorkerConcurrency, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueueCleanup,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	concurrency := config.AppConfig.CleanupWorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	burst := config.AppConfig.CleanupBurst
	if burst <= 0 {
		burst = 1
	}
	var limiter *rate.Limiter
	if config.AppConfig.CleanupRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(config.AppConfig.CleanupRate), burst)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("cleanup worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handleCleanupMessage(ctx, limiter, d)
			}(delivery)
		}
	}
}

func handleCleanupMessage(ctx context.Context, limiter *rate.Limiter, delivery amqp.Delivery) {
	var msg mq.FilePurgedMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Printf("cleanup worker: invalid message: %v", err)
		_ = delivery.Ack(false)
		return
	}

	if err := limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	if err := storage.Minio.RemoveBlob(ctx, msg.BlobID); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			_ = delivery.Nack(false, true)
			return
		}
		log.Printf("cleanup worker: remove blob %s failed: %v", msg.BlobID, err)
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}
