package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/metrics"
	"classattend/internal/queue"
	"classattend/internal/store"
)

// Worker drains the pending-sync queue: attendance recorded locally while
// the store was unreachable gets retried here until it lands.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if cfg.Env == "dev" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var pending queue.Queue
	if cfg.QueueBackend == "memory" {
		pending = queue.NewInMemory(64)
	} else {
		pending = queue.NewRedisQueue(redisClient.Client, "classattend:pending")
	}

	repo := attendance.NewRepository(db.Client)

	messages, err := pending.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("sync worker started, waiting for pending attendance")
	for msg := range messages {
		if msg.Type != queue.TypeAttendance {
			continue
		}

		var evt attendance.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			logger.Error("pending event unmarshal failed, dropping", zap.Error(err))
			continue
		}

		if syncEvent(ctx, repo, evt, logger) {
			metrics.PendingSynced.Inc()
			continue
		}
		metrics.PendingRetries.Inc()

		// Back off, then put it back at the head of the line.
		select {
		case <-time.After(cfg.SyncRetryDelay):
		case <-ctx.Done():
		}
		requeue(pending, msg, logger)
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("sync worker stopped")
}

// syncEvent returns true when the event is durably in the store, either
// because this attempt inserted it or a prior attempt already had.
func syncEvent(ctx context.Context, repo *attendance.Repository, evt attendance.Event, logger *zap.Logger) bool {
	prior, err := repo.FindEvent(ctx, evt.ClassID, evt.SubjectID, evt.OccurredAt)
	if err == nil && prior != nil {
		logger.Info("pending event already synced",
			zap.String("subject_id", evt.SubjectID),
			zap.String("class_id", evt.ClassID))
		return true
	}

	if _, err := repo.InsertEvent(ctx, evt); err != nil {
		logger.Warn("pending event insert failed",
			zap.String("subject_id", evt.SubjectID),
			zap.String("idempotency_key", evt.IdempotencyKey),
			zap.Error(err))
		return false
	}
	logger.Info("pending event synced",
		zap.String("subject_id", evt.SubjectID),
		zap.String("class_id", evt.ClassID))
	return true
}

func requeue(pending queue.Queue, msg queue.Message, logger *zap.Logger) {
	// Publish with a fresh context so shutdown does not drop the event.
	pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pending.Publish(pubCtx, msg); err != nil {
		logger.Error("pending event requeue failed", zap.Error(err))
	}
}
