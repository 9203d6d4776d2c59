package domain

import (
	"errors"
	"time"
)

// Group описывает группу сообщества.
type Group struct {
	ID             string
	Name           string
	OwnerID        string
	TimezoneOffset int
	CreatedAt      time.Time
}

// GroupMember хранит членство пользователя в группе.
type GroupMember struct {
	GroupID  string
	UserID   string
	Streak   int
	JoinedAt time.Time
}

// ActivityType описывает категорию активности участника.
type ActivityType string

const (
	// ActivityMessage — сообщение в чате группы.
	ActivityMessage ActivityType = "message"
	// ActivityGratitude — благодарность, опубликованная в группе.
	ActivityGratitude ActivityType = "gratitude"
	// ActivityPrayer — просьба о молитве, опубликованная в группе.
	ActivityPrayer ActivityType = "prayer"
)

// ErrUnknownActivityType возвращается при неизвестной категории активности.
var ErrUnknownActivityType = errors.New("неизвестный тип активности")

// ParseActivityType приводит строку провайдера к канонической категории.
func ParseActivityType(raw string) (ActivityType, error) {
	switch ActivityType(raw) {
	case ActivityMessage, ActivityGratitude, ActivityPrayer:
		return ActivityType(raw), nil
	}
	return "", ErrUnknownActivityType
}

// IsGroupAction сообщает, относится ли категория к действиям группы.
func (t ActivityType) IsGroupAction() bool {
	return t == ActivityGratitude || t == ActivityPrayer
}

// ActivityEvent — каноническое событие активности. После нормализации не изменяется,
// за исключением счётчика реакций, который провайдер досылает отдельными событиями.
type ActivityEvent struct {
	ID         string       `json:"id"`
	GroupID    string       `json:"group_id"`
	ActorID    string       `json:"actor_id"`
	Type       ActivityType `json:"type"`
	ActionID   string       `json:"action_id,omitempty"`
	MessageID  string       `json:"message_id,omitempty"`
	Reactions  int          `json:"reactions,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Window задаёт полуоткрытый интервал времени [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid сообщает, что интервал не пуст.
func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

// Contains проверяет попадание момента в интервал.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// KeyContributor — участник из рейтинга вовлечённости группы.
type KeyContributor struct {
	UserID string  `json:"uid"`
	Score  float64 `json:"score"`
}

// GroupStats — сводная статистика группы за окно.
type GroupStats struct {
	TotalGroupActionsByType map[ActivityType]int `json:"total_group_actions"`
	TotalMessages           int                  `json:"total_messages"`
	TotalEngagedMembers     int                  `json:"total_engaged_members"`
	KeyContributors         []KeyContributor     `json:"key_contributors,omitempty"`
}

// UserStats — статистика одного участника за окно.
type UserStats struct {
	TotalGroupActionsByType map[ActivityType]int `json:"total_group_actions"`
	TotalMessages           int                  `json:"total_messages"`
	StreakGain              int                  `json:"streak_gain"`
	MostReactedGratitude    *ActivityEvent       `json:"most_reacted_gratitude,omitempty"`
}

// WeeklyReview — сохранённый снимок недельной сводки группы.
type WeeklyReview struct {
	WeekID     string               `json:"week_id"`
	GroupID    string               `json:"group_id"`
	StartTime  time.Time            `json:"start_time"`
	EndTime    time.Time            `json:"end_time"`
	GroupStats GroupStats           `json:"group_stats"`
	UserStats  map[string]UserStats `json:"user_stats"`
	BuiltAt    time.Time            `json:"built_at"`
}
