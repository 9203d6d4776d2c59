package privatechat

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveChannelIDSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"u_001", "u_002"},
		{"z", "a"},
	}
	for _, pair := range pairs {
		ab, err := ResolveChannelID("g1", pair[0], pair[1])
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		ba, err := ResolveChannelID("g1", pair[1], pair[0])
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if ab != ba {
			t.Fatalf("id зависит от порядка пары %v: %s != %s", pair, ab, ba)
		}
	}
}

func TestResolveChannelIDFormat(t *testing.T) {
	id, err := ResolveChannelID("g1", "alice", "bob")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.HasPrefix(id, ChannelPrefix) {
		t.Fatalf("ожидали префикс %q: %s", ChannelPrefix, id)
	}
	digest := strings.TrimPrefix(id, ChannelPrefix)
	if len(digest) != 64 {
		t.Fatalf("ожидали 64 hex-символа, получили %d", len(digest))
	}
	if digest != strings.ToLower(digest) {
		t.Fatalf("ожидали hex в нижнем регистре: %s", digest)
	}
	if !IsPrivateChannel(id) {
		t.Fatalf("id личного канала не распознан")
	}
}

func TestResolveChannelIDStable(t *testing.T) {
	// Контракт совместимости: алгоритм и разделитель зафиксированы,
	// выведенный id не должен меняться между версиями.
	first, err := ResolveChannelID("g1", "alice", "bob")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := ResolveChannelID("g1", "bob", "alice")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if first != second {
		t.Fatalf("id нестабилен: %s != %s", first, second)
	}
}

func TestResolveChannelIDDistinctGroups(t *testing.T) {
	seen := make(map[string]string)
	for _, groupID := range []string{"g1", "g2", "g3"} {
		id, err := ResolveChannelID(groupID, "alice", "bob")
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if prev, ok := seen[id]; ok {
			t.Fatalf("коллизия между группами %s и %s", prev, groupID)
		}
		seen[id] = groupID
	}
}

func TestResolveChannelIDDistinctPairs(t *testing.T) {
	users := []string{"a", "b", "c", "d", "ab"}
	seen := make(map[string]struct{})
	for i := range users {
		for j := i + 1; j < len(users); j++ {
			id, err := ResolveChannelID("g1", users[i], users[j])
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if _, ok := seen[id]; ok {
				t.Fatalf("коллизия для пары %s/%s", users[i], users[j])
			}
			seen[id] = struct{}{}
		}
	}
}

func TestResolveChannelIDInvalidInput(t *testing.T) {
	cases := [][2]string{
		{"alice", "alice"},
		{"", "bob"},
		{"alice", ""},
	}
	for _, pair := range cases {
		if _, err := ResolveChannelID("g1", pair[0], pair[1]); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ожидали ErrInvalidInput для %v, получили %v", pair, err)
		}
	}
}
