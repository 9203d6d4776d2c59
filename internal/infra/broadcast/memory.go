package broadcast

import (
	"context"
	"sync"

	"carry-core/internal/domain"
	"carry-core/internal/infra/metrics"
)

const subscriberBuffer = 16

// Bus — внутрипроцессная шина сигналов аутентификации. Каждая подписка
// обслуживается собственной горутиной, поэтому обработчик одной подписки
// вызывается строго последовательно. Шина не различает отправителя: сигнал
// приходит и в подписку публикующей сессии. Сигнал — лишь повод перечитать
// состояние, поэтому самодоставка безопасна.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan domain.AuthSignal
	nextID int
}

var _ domain.AuthBroadcast = (*Bus)(nil)

// NewBus создаёт шину.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan domain.AuthSignal)}
}

// Publish рассылает сигнал всем подписчикам, не блокируясь. Если буфер
// подписчика переполнен, сигнал для него теряется.
func (b *Bus) Publish(_ context.Context, signal domain.AuthSignal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- signal:
		default:
			metrics.BroadcastDroppedTotal.Inc()
		}
	}
	metrics.IncBroadcast(string(signal))
}

// Subscribe регистрирует обработчик и возвращает функцию отписки.
func (b *Bus) Subscribe(handler func(domain.AuthSignal)) func() {
	ch := make(chan domain.AuthSignal, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for signal := range ch {
			handler(signal)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
			<-done
		})
	}
}
