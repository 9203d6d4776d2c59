package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"carry-core/internal/adapters/ingest"
	"carry-core/internal/adapters/repo"
	"carry-core/internal/domain"
	"carry-core/internal/infra/broadcast"
	"carry-core/internal/infra/cache"
	"carry-core/internal/infra/config"
	"carry-core/internal/infra/db"
	httpinfra "carry-core/internal/infra/http"
	"carry-core/internal/infra/metrics"
	"carry-core/internal/infra/queue"
	"carry-core/internal/usecase/privatechat"
	"carry-core/internal/usecase/review"
	"carry-core/internal/usecase/rollup"
)

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		log.Fatal().Msg("api: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	reviewCache := cache.NewRedis(redisClient, "carry")
	authBus := broadcast.NewRedisBus(redisClient, cfg.Broadcast.Channel, log.With().Str("component", "broadcast").Logger())
	rollupQueue := queue.NewRedisRollupQueue(redisClient, cfg.Queues.Rollup)

	reviewService := review.NewService(repoAdapter, repoAdapter, repoAdapter, rollup.NewEngine(), reviewCache, review.Config{
		Weights:         cfg.ReviewWeights(),
		TopContributors: cfg.Review.TopContributors,
		UseCurrentWeek:  cfg.Review.UseCurrentWeek,
		CacheTTL:        cfg.Review.CacheTTL,
	}, log.With().Str("component", "review").Logger())

	normalizer := ingest.NewNormalizer()

	srv := httpinfra.NewServer(log.With().Str("component", "http").Logger())
	r := srv.Router

	r.Group(func(hooks chi.Router) {
		hooks.Use(httpinfra.WebhookAuthMiddleware(cfg.Webhook.Secret))
		hooks.Post("/hooks/chat", handleChatWebhook(normalizer, repoAdapter))
	})

	r.Get("/api/v1/groups/{groupID}/review", func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("user_id обязателен"))
			return
		}
		out, err := reviewService.GetForUser(r.Context(), groupID, userID)
		if err != nil {
			switch {
			case errors.Is(err, review.ErrNotAvailable):
				httpinfra.WriteError(w, http.StatusNotFound, err)
			case errors.Is(err, domain.ErrGroupNotFound):
				httpinfra.WriteError(w, http.StatusNotFound, err)
			default:
				log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: выдача сводки")
				httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("внутренняя ошибка"))
			}
			return
		}
		httpinfra.WriteJSON(w, http.StatusOK, out)
	})

	r.Post("/api/v1/groups/{groupID}/private-channel", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req privateChannelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("некорректное тело запроса"))
			return
		}
		channelID, err := privatechat.ResolveChannelID(chi.URLParam(r, "groupID"), req.UserA, req.UserB)
		if err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, err)
			return
		}
		httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"channel_id": channelID})
	})

	r.Post("/api/v1/auth/notify", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req authNotifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("некорректное тело запроса"))
			return
		}
		sig := domain.AuthSignal(req.Signal)
		if sig != domain.AuthSignedIn && sig != domain.AuthSignedOut {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("неизвестный сигнал"))
			return
		}
		authBus.Publish(r.Context(), sig)
		httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
	})

	r.Post("/api/v1/groups/{groupID}/rollup", func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		if _, err := repoAdapter.GetGroup(r.Context(), groupID); err != nil {
			if errors.Is(err, domain.ErrGroupNotFound) {
				httpinfra.WriteError(w, http.StatusNotFound, err)
				return
			}
			log.Error().Err(err).Msg("api: проверка группы")
			httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("внутренняя ошибка"))
			return
		}
		job := domain.RollupJob{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			At:          time.Now().UTC(),
			RequestedAt: time.Now().UTC(),
			Cause:       domain.RollupCauseManual,
		}
		if err := rollupQueue.Enqueue(r.Context(), job); err != nil {
			log.Error().Err(err).Str("group", groupID).Msg("api: постановка задачи сводки")
			httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("не удалось поставить задачу"))
			return
		}
		httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
	})

	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), ":9090")

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func handleChatWebhook(normalizer *ingest.Normalizer, events domain.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("не удалось прочитать тело запроса"))
			return
		}
		normalized, err := normalizer.Normalize(body)
		if err != nil {
			metrics.IngestRejectedTotal.Inc()
			// Неизвестный тип события подтверждаем: ошибка провайдеру заставит
			// его повторять доставку или отключить хук.
			if errors.Is(err, ingest.ErrUnrecognizedEventType) {
				httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
				return
			}
			httpinfra.WriteError(w, http.StatusBadRequest, err)
			return
		}
		switch {
		case normalized.Event != nil:
			if err := events.SaveEvent(r.Context(), *normalized.Event); err != nil {
				log.Error().Err(err).Str("event", normalized.Event.ID).Msg("api: сохранение события")
				httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("не удалось сохранить событие"))
				return
			}
			metrics.IncIngestEvent(string(normalized.Event.Type))
		case normalized.Reaction != nil:
			reaction := normalized.Reaction
			if err := events.ApplyReaction(r.Context(), reaction.GroupID, reaction.ActionID, reaction.Delta); err != nil {
				log.Error().Err(err).Str("action", reaction.ActionID).Msg("api: обновление реакций")
				httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("не удалось обновить реакции"))
				return
			}
			metrics.IncIngestEvent("reaction")
		}
		httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type privateChannelRequest struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`
}

type authNotifyRequest struct {
	Signal string `json:"signal"`
}
