package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	IngestEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_events_total",
		Help: "Нормализованные события активности по категориям",
	}, []string{"type"})

	IngestRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_rejected_total",
		Help: "События провайдера, отклонённые нормализатором",
	})

	RollupBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollup_build_seconds",
		Help:    "Время построения недельной сводки",
		Buckets: prometheus.DefBuckets,
	})

	RollupJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollup_jobs_total",
		Help: "Обработанные задачи построения сводок",
	}, []string{"cause", "status"})

	BroadcastPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_broadcast_published_total",
		Help: "Опубликованные сигналы аутентификации",
	}, []string{"signal"})

	BroadcastDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_broadcast_dropped_total",
		Help: "Сигналы аутентификации, потерянные при доставке",
	})

	ReviewRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "review_requests_total",
		Help: "Общее количество запросов недельных сводок",
	})

	ReviewRequestsByGroup = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "review_requests_by_group_total",
		Help: "Количество запросов недельных сводок по группам",
	}, []string{"group_id"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		IngestEventsTotal,
		IngestRejectedTotal,
		RollupBuildSeconds,
		RollupJobsTotal,
		BroadcastPublishedTotal,
		BroadcastDroppedTotal,
		ReviewRequestsTotal,
		ReviewRequestsByGroup,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncIngestEvent увеличивает счётчик нормализованных событий категории.
func IncIngestEvent(eventType string) {
	IngestEventsTotal.WithLabelValues(eventType).Inc()
}

// IncReviewForGroup увеличивает счётчик запросов сводки для группы.
func IncReviewForGroup(groupID string) {
	ReviewRequestsByGroup.WithLabelValues(groupID).Inc()
}

// IncRollupJob записывает результат обработки задачи сводки.
func IncRollupJob(cause string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RollupJobsTotal.WithLabelValues(cause, status).Inc()
}

// IncBroadcast записывает опубликованный сигнал аутентификации.
func IncBroadcast(signal string) {
	BroadcastPublishedTotal.WithLabelValues(signal).Inc()
}
