package broadcast

import (
	"context"
	"testing"
	"time"

	"carry-core/internal/domain"
)

func waitSignal(t *testing.T, ch <-chan domain.AuthSignal) domain.AuthSignal {
	t.Helper()
	select {
	case signal := <-ch:
		return signal
	case <-time.After(time.Second):
		t.Fatalf("сигнал не доставлен")
		return ""
	}
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	first := make(chan domain.AuthSignal, 1)
	second := make(chan domain.AuthSignal, 1)
	defer bus.Subscribe(func(s domain.AuthSignal) { first <- s })()
	defer bus.Subscribe(func(s domain.AuthSignal) { second <- s })()

	bus.Publish(context.Background(), domain.AuthSignedOut)

	if got := waitSignal(t, first); got != domain.AuthSignedOut {
		t.Fatalf("ожидали signed-out, получили %s", got)
	}
	if got := waitSignal(t, second); got != domain.AuthSignedOut {
		t.Fatalf("ожидали signed-out, получили %s", got)
	}
}

func TestBusSequentialDelivery(t *testing.T) {
	bus := NewBus()
	got := make(chan domain.AuthSignal, 4)
	defer bus.Subscribe(func(s domain.AuthSignal) { got <- s })()

	want := []domain.AuthSignal{domain.AuthSignedIn, domain.AuthSignedOut, domain.AuthSignedIn}
	for _, signal := range want {
		bus.Publish(context.Background(), signal)
	}
	for i, signal := range want {
		if received := waitSignal(t, got); received != signal {
			t.Fatalf("сигнал %d: ожидали %s, получили %s", i, signal, received)
		}
	}
}

func TestBusDeliversToPublisherSubscription(t *testing.T) {
	// Шина не различает отправителя: публикующая сессия тоже получает сигнал.
	bus := NewBus()
	got := make(chan domain.AuthSignal, 1)
	defer bus.Subscribe(func(s domain.AuthSignal) { got <- s })()

	bus.Publish(context.Background(), domain.AuthSignedIn)

	if signal := waitSignal(t, got); signal != domain.AuthSignedIn {
		t.Fatalf("ожидали signed-in, получили %s", signal)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	got := make(chan domain.AuthSignal, 1)
	unsubscribe := bus.Subscribe(func(s domain.AuthSignal) { got <- s })
	unsubscribe()

	bus.Publish(context.Background(), domain.AuthSignedIn)

	select {
	case signal := <-got:
		t.Fatalf("после отписки сигналов быть не должно: %s", signal)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	// Публикация без подписчиков не должна паниковать или блокироваться.
	bus.Publish(context.Background(), domain.AuthSignedIn)
}

func TestBusUnsubscribeTwice(t *testing.T) {
	bus := NewBus()
	unsubscribe := bus.Subscribe(func(domain.AuthSignal) {})
	unsubscribe()
	unsubscribe()
}
