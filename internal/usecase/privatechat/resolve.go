package privatechat

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidInput возвращается для вырожденной пары: пустой id или личный
// канал пользователя с самим собой.
var ErrInvalidInput = errors.New("некорректная пара пользователей для личного канала")

// ChannelPrefix отличает id личных каналов от прочих классов каналов платформы.
// Префикс, разделитель и алгоритм дайджеста — контракт совместимости с
// транспортом сообщений: их смена ломает существующие каналы.
const ChannelPrefix = "private-"

const separator = ":"

// ResolveChannelID детерминированно выводит id личного канала двух участников
// внутри группы. Порядок пользователей не важен: пара приводится к
// каноническому виду лексикографической сортировкой, затем вместе с id группы
// хэшируется SHA-256.
func ResolveChannelID(groupID, userA, userB string) (string, error) {
	if userA == "" || userB == "" || userA == userB {
		return "", ErrInvalidInput
	}
	low, high := userA, userB
	if high < low {
		low, high = high, low
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{groupID, low, high}, separator)))
	return ChannelPrefix + hex.EncodeToString(sum[:]), nil
}

// IsPrivateChannel сообщает, относится ли id канала к личным каналам.
func IsPrivateChannel(channelID string) bool {
	return strings.HasPrefix(channelID, ChannelPrefix)
}
