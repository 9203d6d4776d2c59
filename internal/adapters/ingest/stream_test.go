package ingest

import (
	"errors"
	"testing"
	"time"

	"carry-core/internal/domain"
)

func TestNormalizeMessage(t *testing.T) {
	raw := []byte(`{
		"type": "message.new",
		"channel_id": "g1",
		"message": {"id": "m1", "user": {"id": "u1"}, "created_at": "2025-03-12T10:15:30.250Z"}
	}`)
	n := NewNormalizer()
	got, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Event == nil || got.Reaction != nil {
		t.Fatalf("ожидали событие активности: %+v", got)
	}
	event := got.Event
	if event.Type != domain.ActivityMessage || event.ActorID != "u1" || event.GroupID != "g1" {
		t.Fatalf("неверная нормализация: %+v", event)
	}
	want := time.Date(2025, 3, 12, 10, 15, 30, 250_000_000, time.UTC)
	if !event.OccurredAt.Equal(want) {
		t.Fatalf("ожидали время %v, получили %v", want, event.OccurredAt)
	}
}

func TestNormalizeMessagePrivateChannel(t *testing.T) {
	// У личного канала id не является id группы: группа приходит отдельным полем.
	raw := []byte(`{
		"type": "message.new",
		"channel_id": "private-abc123",
		"group_id": "g7",
		"message": {"id": "m1", "user": {"id": "u1"}, "created_at": "2025-03-12T10:00:00Z"}
	}`)
	n := NewNormalizer()
	got, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Event.GroupID != "g7" {
		t.Fatalf("ожидали группу g7, получили %s", got.Event.GroupID)
	}

	missing := []byte(`{
		"type": "message.new",
		"channel_id": "private-abc123",
		"message": {"id": "m1", "user": {"id": "u1"}, "created_at": "2025-03-12T10:00:00Z"}
	}`)
	if _, err := n.Normalize(missing); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("ожидали ErrMalformedEvent для личного канала без группы, получили %v", err)
	}
}

func TestNormalizeMessageUnixMillis(t *testing.T) {
	raw := []byte(`{
		"type": "message.new",
		"channel_id": "g1",
		"created_at_ms": 1741773330250,
		"message": {"id": "m1", "user": {"id": "u1"}}
	}`)
	n := NewNormalizer()
	got, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := time.UnixMilli(1741773330250).UTC()
	if !got.Event.OccurredAt.Equal(want) {
		t.Fatalf("ожидали %v, получили %v", want, got.Event.OccurredAt)
	}
	if got.Event.OccurredAt.Location() != time.UTC {
		t.Fatalf("время должно быть в UTC")
	}
}

func TestNormalizeMessageWithoutID(t *testing.T) {
	raw := []byte(`{
		"type": "message.new",
		"channel_id": "g1",
		"message": {"user": {"id": "u1"}, "created_at": "2025-03-12T10:00:00Z"}
	}`)
	n := NewNormalizer()
	got, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Event.ID == "" {
		t.Fatalf("событию без id провайдера должен назначаться синтетический id")
	}
}

func TestNormalizeGroupAction(t *testing.T) {
	raw := []byte(`{
		"type": "group_action.new",
		"group_id": "g1",
		"created_at": "2025-03-12T09:00:00Z",
		"action": {"id": "a1", "type": "gratitude", "user_id": "u2", "reaction_count": 4}
	}`)
	n := NewNormalizer()
	got, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	event := got.Event
	if event.Type != domain.ActivityGratitude || event.ActionID != "a1" || event.Reactions != 4 {
		t.Fatalf("неверная нормализация действия: %+v", event)
	}
}

func TestNormalizeUnknownTypesRejected(t *testing.T) {
	n := NewNormalizer()
	cases := []string{
		`{"type": "channel.updated", "channel_id": "g1"}`,
		`{"type": "group_action.new", "group_id": "g1", "created_at": "2025-03-12T09:00:00Z", "action": {"id": "a1", "type": "celebration", "user_id": "u2"}}`,
		`{"type": "group_action.new", "group_id": "g1", "created_at": "2025-03-12T09:00:00Z", "action": {"id": "a1", "type": "message", "user_id": "u2"}}`,
	}
	for _, raw := range cases {
		if _, err := n.Normalize([]byte(raw)); !errors.Is(err, ErrUnrecognizedEventType) {
			t.Fatalf("ожидали ErrUnrecognizedEventType для %s, получили %v", raw, err)
		}
	}
}

func TestNormalizeReaction(t *testing.T) {
	raw := []byte(`{
		"type": "reaction.new",
		"group_id": "g1",
		"action": {"id": "a1"}
	}`)
	n := NewNormalizer()
	got, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Reaction == nil || got.Event != nil {
		t.Fatalf("ожидали реакцию: %+v", got)
	}
	if got.Reaction.ActionID != "a1" || got.Reaction.Delta != 1 {
		t.Fatalf("неверная реакция: %+v", got.Reaction)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n := NewNormalizer()
	cases := []string{
		`{"type": "message.new", "channel_id": "g1", "message": {"id": "m1", "created_at": "2025-03-12T10:00:00Z"}}`,
		`{"type": "message.new", "channel_id": "g1", "message": {"id": "m1", "user": {"id": "u1"}}}`,
		`{"type": "reaction.new", "group_id": "g1"}`,
	}
	for _, raw := range cases {
		if _, err := n.Normalize([]byte(raw)); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("ожидали ErrMalformedEvent для %s, получили %v", raw, err)
		}
	}
}
