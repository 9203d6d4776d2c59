package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carry-core/internal/domain"
)

// ErrUnrecognizedEventType возвращается для событий, которые нормализатор
// не умеет классифицировать. Неизвестные типы отклоняются, а не приводятся
// к ближайшей категории: счётчики сводок должны оставаться исчерпывающими.
var ErrUnrecognizedEventType = errors.New("неизвестный тип события провайдера")

// ErrMalformedEvent возвращается, если у события нет обязательных полей.
var ErrMalformedEvent = errors.New("событие провайдера без обязательных полей")

const (
	eventMessageNew     = "message.new"
	eventGroupActionNew = "group_action.new"
	eventReactionNew    = "reaction.new"

	privateChannelPrefix = "private-"
)

// Reaction — реакция на ранее опубликованное действие группы. Счётчик реакций
// принадлежит провайдеру, нормализатор лишь передаёт дельту хранилищу.
type Reaction struct {
	GroupID  string
	ActionID string
	Delta    int
}

// Normalized — результат нормализации сырого события: ровно одно из полей
// заполнено.
type Normalized struct {
	Event    *domain.ActivityEvent
	Reaction *Reaction
}

// Normalizer приводит сырые события чат-провайдера к канонической схеме.
// Чистое отображение без ввода-вывода, безопасно для параллельных вызовов.
type Normalizer struct{}

// NewNormalizer создаёт нормализатор.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

type rawUser struct {
	ID string `json:"id"`
}

type rawMessage struct {
	ID        string  `json:"id"`
	User      rawUser `json:"user"`
	CreatedAt string  `json:"created_at"`
}

type rawAction struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	UserID        string `json:"user_id"`
	ReactionCount int    `json:"reaction_count"`
}

type rawPayload struct {
	Type        string      `json:"type"`
	GroupID     string      `json:"group_id"`
	ChannelID   string      `json:"channel_id"`
	Message     *rawMessage `json:"message"`
	Action      *rawAction  `json:"action"`
	CreatedAt   string      `json:"created_at"`
	CreatedAtMS int64       `json:"created_at_ms"`
}

// Normalize разбирает сырое событие провайдера. Неизвестный тип события или
// тип действия — ErrUnrecognizedEventType; событие без актора, группы или
// времени — ErrMalformedEvent.
func (n *Normalizer) Normalize(raw []byte) (Normalized, error) {
	var payload rawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Normalized{}, fmt.Errorf("разбор события: %w", err)
	}

	switch payload.Type {
	case eventMessageNew:
		return n.normalizeMessage(payload)
	case eventGroupActionNew:
		return n.normalizeGroupAction(payload)
	case eventReactionNew:
		return n.normalizeReaction(payload)
	}
	return Normalized{}, fmt.Errorf("%w: %q", ErrUnrecognizedEventType, payload.Type)
}

func (n *Normalizer) normalizeMessage(payload rawPayload) (Normalized, error) {
	if payload.Message == nil || payload.Message.User.ID == "" {
		return Normalized{}, fmt.Errorf("%w: message.new без отправителя", ErrMalformedEvent)
	}
	groupID := resolveGroupID(payload)
	if groupID == "" {
		return Normalized{}, fmt.Errorf("%w: message.new без группы", ErrMalformedEvent)
	}
	occurredAt, err := eventTime(payload.Message.CreatedAt, payload.CreatedAt, payload.CreatedAtMS)
	if err != nil {
		return Normalized{}, err
	}
	id := payload.Message.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Normalized{Event: &domain.ActivityEvent{
		ID:         id,
		GroupID:    groupID,
		ActorID:    payload.Message.User.ID,
		Type:       domain.ActivityMessage,
		MessageID:  payload.Message.ID,
		OccurredAt: occurredAt,
	}}, nil
}

func (n *Normalizer) normalizeGroupAction(payload rawPayload) (Normalized, error) {
	if payload.Action == nil || payload.Action.UserID == "" {
		return Normalized{}, fmt.Errorf("%w: group_action.new без автора", ErrMalformedEvent)
	}
	groupID := resolveGroupID(payload)
	if groupID == "" {
		return Normalized{}, fmt.Errorf("%w: group_action.new без группы", ErrMalformedEvent)
	}
	actionType, err := domain.ParseActivityType(payload.Action.Type)
	if err != nil || !actionType.IsGroupAction() {
		return Normalized{}, fmt.Errorf("%w: тип действия %q", ErrUnrecognizedEventType, payload.Action.Type)
	}
	occurredAt, err := eventTime(payload.CreatedAt, "", payload.CreatedAtMS)
	if err != nil {
		return Normalized{}, err
	}
	id := payload.Action.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Normalized{Event: &domain.ActivityEvent{
		ID:         id,
		GroupID:    groupID,
		ActorID:    payload.Action.UserID,
		Type:       actionType,
		ActionID:   payload.Action.ID,
		Reactions:  payload.Action.ReactionCount,
		OccurredAt: occurredAt,
	}}, nil
}

func (n *Normalizer) normalizeReaction(payload rawPayload) (Normalized, error) {
	if payload.Action == nil || payload.Action.ID == "" {
		return Normalized{}, fmt.Errorf("%w: reaction.new без действия", ErrMalformedEvent)
	}
	groupID := resolveGroupID(payload)
	if groupID == "" {
		return Normalized{}, fmt.Errorf("%w: reaction.new без группы", ErrMalformedEvent)
	}
	return Normalized{Reaction: &Reaction{
		GroupID:  groupID,
		ActionID: payload.Action.ID,
		Delta:    1,
	}}, nil
}

// resolveGroupID определяет группу события. Для обычных каналов id канала и
// есть id группы; личные каналы обязаны нести группу отдельным полем.
func resolveGroupID(payload rawPayload) string {
	if payload.GroupID != "" {
		return payload.GroupID
	}
	if payload.ChannelID != "" && !strings.HasPrefix(payload.ChannelID, privateChannelPrefix) {
		return payload.ChannelID
	}
	return ""
}

// eventTime приводит время события к UTC с миллисекундной точностью.
// Принимаются RFC3339 и unix-миллисекунды.
func eventTime(candidates ...any) (time.Time, error) {
	for _, candidate := range candidates {
		switch v := candidate.(type) {
		case string:
			if v == "" {
				continue
			}
			parsed, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: время %q", ErrMalformedEvent, v)
			}
			return parsed.UTC().Truncate(time.Millisecond), nil
		case int64:
			if v == 0 {
				continue
			}
			return time.UnixMilli(v).UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: событие без времени", ErrMalformedEvent)
}
