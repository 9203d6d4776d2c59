package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"carry-core/internal/domain"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Webhook struct {
		Secret string `envconfig:"CHAT_WEBHOOK_SECRET"`
	} `envconfig:""`

	Broadcast struct {
		Channel string `envconfig:"AUTH_BROADCAST_CHANNEL" default:"carry:auth"`
	} `envconfig:""`

	Queues struct {
		Rollup    string `envconfig:"ROLLUP_QUEUE_KEY" default:"rollup_jobs"`
		RawEvents string `envconfig:"RAW_EVENTS_QUEUE" default:"chat_events"`
	} `envconfig:""`

	Scheduler struct {
		Interval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1h"`
	} `envconfig:""`

	Review struct {
		TopContributors int           `envconfig:"REVIEW_TOP_CONTRIBUTORS" default:"3"`
		UseCurrentWeek  bool          `envconfig:"REVIEW_USE_CURRENT_WEEK" default:"false"`
		CacheTTL        time.Duration `envconfig:"REVIEW_CACHE_TTL" default:"10m"`
		WeightMessage   float64       `envconfig:"REVIEW_WEIGHT_MESSAGE" default:"1"`
		WeightGratitude float64       `envconfig:"REVIEW_WEIGHT_GRATITUDE" default:"1"`
		WeightPrayer    float64       `envconfig:"REVIEW_WEIGHT_PRAYER" default:"1"`
	} `envconfig:""`
}

// ReviewWeights собирает веса категорий для рейтинга вовлечённых.
func (c AppConfig) ReviewWeights() map[domain.ActivityType]float64 {
	return map[domain.ActivityType]float64{
		domain.ActivityMessage:   c.Review.WeightMessage,
		domain.ActivityGratitude: c.Review.WeightGratitude,
		domain.ActivityPrayer:    c.Review.WeightPrayer,
	}
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
