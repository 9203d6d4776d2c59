package broadcast

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"carry-core/internal/domain"
	"carry-core/internal/infra/metrics"
)

const publishTimeout = 3 * time.Second

// RedisBus рассылает сигналы аутентификации через Redis pub/sub. Сессии
// разных процессов одного окружения слушают общий канал.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

var _ domain.AuthBroadcast = (*RedisBus)(nil)

// NewRedisBus создаёт шину на указанном канале.
func NewRedisBus(client *redis.Client, channel string, logger zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, channel: channel, log: logger}
}

// Publish отправляет сигнал в канал. Вызов не блокирует: публикация идёт в
// фоне, ошибка доставки лишь логируется.
func (b *RedisBus) Publish(ctx context.Context, signal domain.AuthSignal) {
	go func() {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		start := time.Now()
		err := b.client.Publish(publishCtx, b.channel, string(signal)).Err()
		metrics.ObserveNetworkRequest("redis", "publish", b.channel, start, err)
		if err != nil {
			metrics.BroadcastDroppedTotal.Inc()
			b.log.Debug().Err(err).Str("signal", string(signal)).Msg("broadcast: сигнал потерян")
			return
		}
		metrics.IncBroadcast(string(signal))
	}()
}

// Subscribe подписывает обработчик на канал и возвращает функцию отписки.
func (b *RedisBus) Subscribe(handler func(domain.AuthSignal)) func() {
	pubsub := b.client.Subscribe(context.Background(), b.channel)
	go func() {
		for msg := range pubsub.Channel() {
			signal := domain.AuthSignal(msg.Payload)
			if signal != domain.AuthSignedIn && signal != domain.AuthSignedOut {
				b.log.Debug().Str("payload", msg.Payload).Msg("broadcast: неизвестный сигнал")
				continue
			}
			handler(signal)
		}
	}()
	return func() {
		if err := pubsub.Close(); err != nil {
			b.log.Debug().Err(err).Msg("broadcast: ошибка закрытия подписки")
		}
	}
}
