package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"carry-core/internal/adapters/repo"
	"carry-core/internal/domain"
	"carry-core/internal/infra/config"
	"carry-core/internal/infra/db"
	applog "carry-core/internal/infra/log"
	"carry-core/internal/infra/metrics"
	"carry-core/internal/infra/queue"
	"carry-core/internal/usecase/review"
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
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("scheduler: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	rollupQueue := queue.NewRedisRollupQueue(redisClient, cfg.Queues.Rollup)

	logger.Info().Dur("interval", cfg.Scheduler.Interval).Msg("scheduler: старт")
	ticker := time.NewTicker(cfg.Scheduler.Interval)
	defer ticker.Stop()

	scheduleOnce(ctx, logger, repoAdapter, rollupQueue)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-ticker.C:
			scheduleOnce(ctx, logger, repoAdapter, rollupQueue)
		}
	}
}

// scheduleOnce ставит задачи на сводку за предыдущую неделю каждой группы.
// Неделя берётся в работу ровно один раз, конкурирующие экземпляры
// планировщика не создают дублей.
func scheduleOnce(ctx context.Context, logger zerolog.Logger, groups domain.GroupRepo, rollupQueue domain.RollupQueue) {
	now := time.Now().UTC()
	ids, err := groups.ListGroupIDs(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("scheduler: ошибка выборки групп")
		return
	}
	for _, groupID := range ids {
		group, err := groups.GetGroup(ctx, groupID)
		if err != nil {
			logger.Error().Err(err).Str("group", groupID).Msg("scheduler: группа недоступна")
			continue
		}
		weekID, window := review.PreviousWeekOf(now, group.TimezoneOffset)
		acquired, err := groups.AcquireRollupTask(ctx, groupID, weekID)
		if err != nil {
			logger.Error().Err(err).Str("group", groupID).Str("week", weekID).Msg("scheduler: не удалось взять неделю в работу")
			continue
		}
		if !acquired {
			continue
		}
		job := domain.RollupJob{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			At:          window.Start,
			RequestedAt: now,
			Cause:       domain.RollupCauseScheduled,
		}
		if err := rollupQueue.Enqueue(ctx, job); err != nil {
			logger.Error().Err(err).Str("group", groupID).Str("week", weekID).Msg("scheduler: не удалось поставить задачу")
			continue
		}
		logger.Info().Str("group", groupID).Str("week", weekID).Str("job_id", job.ID).Msg("scheduler: задача поставлена")
	}
}
