package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"carry-core/internal/adapters/ingest"
	"carry-core/internal/adapters/repo"
	"carry-core/internal/domain"
	"carry-core/internal/infra/config"
	"carry-core/internal/infra/db"
	applog "carry-core/internal/infra/log"
	"carry-core/internal/infra/metrics"
	"carry-core/internal/infra/queue"
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
		logger.Fatal().Err(err).Msg("collector: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	if cfg.RabbitURL == "" {
		logger.Fatal().Msg("collector: не указан адрес RabbitMQ (RABBITMQ_URL)")
	}
	stream, err := queue.NewRabbitEventStream(cfg.RabbitURL, cfg.Queues.RawEvents)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: не удалось инициализировать очередь RabbitMQ")
	}
	defer stream.Close()

	worker := &eventWorker{
		log:        logger,
		stream:     stream,
		events:     repoAdapter,
		normalizer: ingest.NewNormalizer(),
	}

	logger.Info().Msg("collector: запуск обработки потока событий")
	worker.Run(ctx)
	logger.Info().Msg("collector: остановлен")
}

type eventWorker struct {
	log        zerolog.Logger
	stream     domain.RawEventStream
	events     domain.EventRepo
	normalizer *ingest.Normalizer
}

func (w *eventWorker) Run(ctx context.Context) {
	for {
		raw, ack, err := w.stream.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("collector: ошибка чтения потока")
			time.Sleep(time.Second)
			continue
		}

		normalized, err := w.normalizer.Normalize(raw.Body)
		if err != nil {
			// Невалидное событие не станет валидным при повторе: подтверждаем и пропускаем.
			metrics.IngestRejectedTotal.Inc()
			w.log.Warn().Err(err).Msg("collector: событие отклонено")
			if ackErr := ack(true); ackErr != nil {
				w.log.Error().Err(ackErr).Msg("collector: не удалось подтвердить отклонённое событие")
			}
			continue
		}

		if err := w.apply(ctx, normalized); err != nil {
			w.log.Error().Err(err).Msg("collector: не удалось применить событие, вернём в очередь")
			if ackErr := ack(false); ackErr != nil {
				w.log.Error().Err(ackErr).Msg("collector: не удалось вернуть событие в очередь")
			}
			time.Sleep(time.Second)
			continue
		}

		if err := ack(true); err != nil {
			w.log.Error().Err(err).Msg("collector: не удалось подтвердить событие")
		}
	}
}

func (w *eventWorker) apply(ctx context.Context, normalized ingest.Normalized) error {
	switch {
	case normalized.Event != nil:
		if err := w.events.SaveEvent(ctx, *normalized.Event); err != nil {
			return err
		}
		metrics.IncIngestEvent(string(normalized.Event.Type))
	case normalized.Reaction != nil:
		reaction := normalized.Reaction
		if err := w.events.ApplyReaction(ctx, reaction.GroupID, reaction.ActionID, reaction.Delta); err != nil {
			return err
		}
		metrics.IncIngestEvent("reaction")
	}
	return nil
}
