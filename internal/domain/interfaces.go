package domain

import (
	"context"
	"errors"
	"time"
)

// ErrGroupNotFound возвращается, если группа не существует.
var ErrGroupNotFound = errors.New("группа не найдена")

// ErrReviewNotFound возвращается, если сводка за неделю ещё не построена.
var ErrReviewNotFound = errors.New("сводка за неделю не найдена")

// GroupRepo управляет группами и их составом.
type GroupRepo interface {
	GetGroup(ctx context.Context, groupID string) (Group, error)
	ListGroupIDs(ctx context.Context) ([]string, error)
	Roster(ctx context.Context, groupID string) ([]GroupMember, error)
	// AcquireRollupTask помечает неделю группы как взятую в работу и возвращает true,
	// если запись была создана. При конфликте возвращает false без ошибки.
	AcquireRollupTask(ctx context.Context, groupID, weekID string) (bool, error)
}

// EventRepo управляет каноническими событиями активности.
type EventRepo interface {
	SaveEvent(ctx context.Context, event ActivityEvent) error
	// ApplyReaction увеличивает счётчик реакций действия группы.
	ApplyReaction(ctx context.Context, groupID, actionID string, delta int) error
	ListEvents(ctx context.Context, groupID string, window Window) ([]ActivityEvent, error)
}

// ReviewRepo сохраняет и возвращает недельные сводки.
type ReviewRepo interface {
	SaveReview(ctx context.Context, review WeeklyReview) error
	GetReview(ctx context.Context, groupID, weekID string) (WeeklyReview, error)
	// LatestReviewBefore возвращает последнюю сводку, завершившуюся до указанного момента.
	LatestReviewBefore(ctx context.Context, groupID string, before time.Time) (WeeklyReview, error)
	// EnsureRollupJob регистрирует попытку обработки и возвращает признак завершённости
	// и номер текущей попытки.
	EnsureRollupJob(ctx context.Context, jobID string) (done bool, attempt int, err error)
	MarkRollupJobDone(ctx context.Context, jobID string) error
}

// AuthSignal — вид сигнала о смене состояния аутентификации.
type AuthSignal string

const (
	// AuthSignedIn рассылается после завершения входа в одной из сессий.
	AuthSignedIn AuthSignal = "signed-in"
	// AuthSignedOut рассылается после выхода в одной из сессий.
	AuthSignedOut AuthSignal = "signed-out"
)

// AuthBroadcast рассылает сигналы аутентификации всем живым сессиям одного
// пользовательского окружения. Publish не блокирует и не возвращает ошибку:
// сигнал — лишь подсказка перечитать состояние, его потеря допустима.
type AuthBroadcast interface {
	Publish(ctx context.Context, signal AuthSignal)
	// Subscribe регистрирует обработчик и возвращает функцию отписки.
	// Обработчик вызывается последовательно в рамках одной подписки.
	Subscribe(handler func(AuthSignal)) (unsubscribe func())
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

// RawEvent — сырое событие провайдера чата до нормализации.
type RawEvent struct {
	Body       []byte
	ReceivedAt time.Time
}

// RawAckFunc подтверждает успешную обработку или запрашивает повтор доставки.
type RawAckFunc func(success bool) error

// RawEventStream — поток сырых событий активности.
type RawEventStream interface {
	Receive(ctx context.Context) (RawEvent, RawAckFunc, error)
}
