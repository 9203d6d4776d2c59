package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"carry-core/internal/adapters/repo"
	"carry-core/internal/domain"
	"carry-core/internal/infra/cache"
	"carry-core/internal/infra/config"
	"carry-core/internal/infra/db"
	applog "carry-core/internal/infra/log"
	"carry-core/internal/infra/metrics"
	"carry-core/internal/infra/queue"
	"carry-core/internal/usecase/review"
	"carry-core/internal/usecase/rollup"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("rollup-worker: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("rollup-worker: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	rollupQueue := queue.NewRedisRollupQueue(redisClient, cfg.Queues.Rollup)
	reviewCache := cache.NewRedis(redisClient, "carry")

	reviewService := review.NewService(repoAdapter, repoAdapter, repoAdapter, rollup.NewEngine(), reviewCache, review.Config{
		Weights:         cfg.ReviewWeights(),
		TopContributors: cfg.Review.TopContributors,
		UseCurrentWeek:  cfg.Review.UseCurrentWeek,
		CacheTTL:        cfg.Review.CacheTTL,
	}, logger.With().Str("component", "review").Logger())

	worker := &jobWorker{
		log:      logger,
		queue:    rollupQueue,
		statuses: repoAdapter,
		service:  reviewService,
	}

	logger.Info().Msg("rollup-worker: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("rollup-worker: остановлен")
}

type jobWorker struct {
	log      zerolog.Logger
	queue    domain.RollupQueue
	statuses domain.ReviewRepo
	service  *review.Service
}

const maxBuildAttempts = 5

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("rollup-worker: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}

		jobLog := w.log.With().
			Str("job_id", job.ID).
			Str("group", job.GroupID).
			Str("cause", string(job.Cause)).
			Logger()

		if job.ID == "" {
			jobLog.Error().Msg("rollup-worker: задача без идентификатора, подтверждаем и пропускаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("rollup-worker: не удалось подтвердить задачу без идентификатора")
			}
			continue
		}

		done, attempt, err := w.statuses.EnsureRollupJob(ctx, job.ID)
		if err != nil {
			jobLog.Error().Err(err).Msg("rollup-worker: не удалось зарегистрировать задачу")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("rollup-worker: не удалось вернуть задачу в очередь")
			}
			time.Sleep(time.Second)
			continue
		}

		jobLog = jobLog.With().Int("attempt", attempt).Logger()

		if done {
			jobLog.Info().Msg("rollup-worker: задача уже выполнена, подтверждаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("rollup-worker: не удалось подтвердить выполненную задачу")
			}
			continue
		}

		at := job.At
		if at.IsZero() {
			at = job.RequestedAt
		}
		_, buildErr := w.service.BuildForTime(ctx, job.GroupID, at)
		metrics.IncRollupJob(string(job.Cause), buildErr)

		if buildErr != nil && attempt < maxBuildAttempts {
			jobLog.Warn().Err(buildErr).Msg("rollup-worker: построение не удалось, повторим позже")
			if err := ack(false); err != nil {
				jobLog.Error().Err(err).Msg("rollup-worker: не удалось вернуть задачу после ошибки")
			}
			continue
		}
		if buildErr != nil {
			jobLog.Error().Err(buildErr).Msg("rollup-worker: достигнут предел попыток, помечаем задачу выполненной")
		} else {
			jobLog.Info().Msg("rollup-worker: сводка построена")
		}

		if err := w.statuses.MarkRollupJobDone(ctx, job.ID); err != nil {
			jobLog.Error().Err(err).Msg("rollup-worker: не удалось пометить задачу выполненной")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("rollup-worker: не удалось вернуть задачу после ошибки статуса")
			}
			time.Sleep(time.Second)
			continue
		}

		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("rollup-worker: не удалось подтвердить задачу")
		}
	}
}
