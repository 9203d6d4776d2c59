package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"carry-core/internal/domain"
)

// syncBus доставляет сигналы подписчикам синхронно, чтобы тесты были
// детерминированными. Издатель получает сигнал наравне с остальными.
type syncBus struct {
	mu       sync.Mutex
	handlers map[int]func(domain.AuthSignal)
	next     int
}

func newSyncBus() *syncBus {
	return &syncBus{handlers: make(map[int]func(domain.AuthSignal))}
}

func (b *syncBus) Publish(ctx context.Context, signal domain.AuthSignal) {
	b.mu.Lock()
	handlers := make([]func(domain.AuthSignal), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(signal)
	}
}

func (b *syncBus) Subscribe(handler func(domain.AuthSignal)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

type stubLoader struct {
	mu       sync.Mutex
	identity Identity
	err      error
	loads    int
}

func (l *stubLoader) Load(ctx context.Context) (Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	return l.identity, l.err
}

func (l *stubLoader) set(identity Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.identity = identity
}

func (l *stubLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

func TestSignOutPropagatesToSibling(t *testing.T) {
	bus := newSyncBus()
	shared := &stubLoader{identity: Identity{UserID: "u1", Authenticated: true}}

	a := New(shared, bus, zerolog.Nop())
	b := New(shared, bus, zerolog.Nop())
	a.Start()
	b.Start()
	defer a.Close()
	defer b.Close()

	if err := a.SignIn(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !b.Identity().Authenticated {
		t.Fatalf("сессия B должна была перечитать состояние после входа в A")
	}

	shared.set(Identity{})
	a.SignOut(context.Background())
	if b.Identity().Authenticated {
		t.Fatalf("сессия B должна была сброситься после выхода в A")
	}
	if a.Identity().Authenticated {
		t.Fatalf("сессия A должна была сброситься сама")
	}
}

func TestSignalForcesReloadNotTrust(t *testing.T) {
	bus := newSyncBus()
	loader := &stubLoader{identity: Identity{UserID: "u1", Authenticated: true}}
	s := New(loader, bus, zerolog.Nop())
	s.Start()
	defer s.Close()

	// Сигнал "signed-out" при всё ещё действительной аутентификации:
	// сессия верит загрузчику, а не виду сигнала.
	bus.Publish(context.Background(), domain.AuthSignedOut)
	if !s.Identity().Authenticated {
		t.Fatalf("сессия должна была перечитать состояние, а не слепо сброситься")
	}
	if loader.loadCount() != 1 {
		t.Fatalf("ожидали одну перезагрузку, получили %d", loader.loadCount())
	}
}

func TestReloadErrorKeepsState(t *testing.T) {
	bus := newSyncBus()
	loader := &stubLoader{identity: Identity{UserID: "u1", Authenticated: true}}
	s := New(loader, bus, zerolog.Nop())
	if err := s.SignIn(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	s.Start()
	defer s.Close()

	loader.mu.Lock()
	loader.err = errors.New("временный сбой")
	loader.mu.Unlock()

	bus.Publish(context.Background(), domain.AuthSignedIn)
	if !s.Identity().Authenticated {
		t.Fatalf("при сбое перезагрузки состояние не должно меняться")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	bus := newSyncBus()
	loader := &stubLoader{}
	s := New(loader, bus, zerolog.Nop())
	s.Start()
	s.Close()

	bus.Publish(context.Background(), domain.AuthSignedIn)
	if loader.loadCount() != 0 {
		t.Fatalf("после Close сигналы не должны доставляться")
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := newSyncBus()
	// Паники или блокировки быть не должно.
	bus.Publish(context.Background(), domain.AuthSignedOut)
}
