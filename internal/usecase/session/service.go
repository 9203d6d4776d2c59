package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"carry-core/internal/domain"
)

// Identity — состояние аутентификации одной сессии.
type Identity struct {
	UserID        string
	Authenticated bool
}

// IdentityLoader перечитывает состояние аутентификации с нуля.
// Сигнал шины не несёт нового состояния, только подсказку, что оно устарело.
type IdentityLoader interface {
	Load(ctx context.Context) (Identity, error)
}

const reloadTimeout = 5 * time.Second

// Session — одна живая сессия пользователя (вкладка или процесс).
// Состояние меняется собственным потоком входа/выхода либо сигналом
// от соседней сессии через шину.
type Session struct {
	loader IdentityLoader
	bus    domain.AuthBroadcast
	log    zerolog.Logger

	mu          sync.Mutex
	identity    Identity
	unsubscribe func()
}

// New создаёт сессию в неаутентифицированном состоянии.
func New(loader IdentityLoader, bus domain.AuthBroadcast, logger zerolog.Logger) *Session {
	return &Session{loader: loader, bus: bus, log: logger}
}

// Start подписывает сессию на сигналы соседних сессий.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return
	}
	s.unsubscribe = s.bus.Subscribe(s.onSignal)
}

// Close отписывает сессию от шины.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Identity возвращает текущее состояние сессии.
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SignIn завершает вход в этой сессии и оповещает соседние.
func (s *Session) SignIn(ctx context.Context) error {
	identity, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	s.bus.Publish(ctx, domain.AuthSignedIn)
	return nil
}

// SignOut сбрасывает состояние этой сессии и оповещает соседние.
func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	s.identity = Identity{}
	s.mu.Unlock()
	s.bus.Publish(ctx, domain.AuthSignedOut)
}

// onSignal перечитывает состояние с нуля при любом сигнале. Сигналы от разных
// сессий не упорядочены между собой, поэтому вид сигнала не интерпретируется.
func (s *Session) onSignal(signal domain.AuthSignal) {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	identity, err := s.loader.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("signal", string(signal)).Msg("session: не удалось перечитать состояние")
		return
	}
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}
