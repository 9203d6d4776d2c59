package rollup

import (
	"errors"
	"sort"
	"time"

	"carry-core/internal/domain"
)

// ErrEmptyWindow возвращается, если начало окна не раньше его конца.
var ErrEmptyWindow = errors.New("пустое окно сводки")

// ErrEmptyRoster возвращается, если состав группы пуст.
var ErrEmptyRoster = errors.New("пустой состав группы")

const defaultTopContributors = 3

// Options задают параметры скоринга сводки. Веса и базовые значения серий
// поставляет вызывающая сторона, движок их не хранит.
type Options struct {
	// Weights — вес каждой категории при подсчёте очков участника.
	// Пустая карта означает равные веса: очки равны числу учтённых событий.
	Weights map[domain.ActivityType]float64
	// TopContributors ограничивает длину рейтинга. 0 — значение по умолчанию.
	TopContributors int
	// PriorStreaks — базовые значения серий участников до начала окна.
	PriorStreaks map[string]int
	// ExcludeUserID не попадает в рейтинг вовлечённых (владелец группы).
	ExcludeUserID string
}

// Result — снимок статистики за окно. Принадлежит вызывающей стороне.
type Result struct {
	GroupStats domain.GroupStats
	UserStats  map[string]domain.UserStats
}

// Engine строит сводку вовлечённости по неизменяемому снимку событий.
// Движок не хранит состояния между вызовами и безопасен для параллельного
// использования.
type Engine struct{}

// NewEngine создаёт движок сводок.
func NewEngine() *Engine {
	return &Engine{}
}

type memberTally struct {
	counts    map[domain.ActivityType]int
	messages  int
	total     int
	earliest  time.Time
	days      map[string]struct{}
	gratitude *domain.ActivityEvent
}

// Rollup агрегирует события окна [window.Start, window.End) по составу группы.
// Учитываются только события участников из roster. Результат детерминирован
// и не зависит от порядка событий на входе.
func (e *Engine) Rollup(events []domain.ActivityEvent, roster []string, window domain.Window, opts Options) (Result, error) {
	if !window.Valid() {
		return Result{}, ErrEmptyWindow
	}
	if len(roster) == 0 {
		return Result{}, ErrEmptyRoster
	}

	members := make(map[string]struct{}, len(roster))
	for _, id := range roster {
		members[id] = struct{}{}
	}

	tallies := make(map[string]*memberTally, len(roster))
	for _, event := range events {
		if _, ok := members[event.ActorID]; !ok {
			continue
		}
		if !window.Contains(event.OccurredAt) {
			continue
		}
		tally := tallies[event.ActorID]
		if tally == nil {
			tally = &memberTally{
				counts: make(map[domain.ActivityType]int),
				days:   make(map[string]struct{}),
			}
			tallies[event.ActorID] = tally
		}
		tally.counts[event.Type]++
		tally.total++
		if event.Type == domain.ActivityMessage {
			tally.messages++
		}
		if tally.earliest.IsZero() || event.OccurredAt.Before(tally.earliest) {
			tally.earliest = event.OccurredAt
		}
		tally.days[event.OccurredAt.UTC().Format("2006-01-02")] = struct{}{}
		if event.Type == domain.ActivityGratitude && betterGratitude(tally.gratitude, event) {
			copied := event
			tally.gratitude = &copied
		}
	}

	group := domain.GroupStats{
		TotalGroupActionsByType: emptyActionCounts(),
	}
	userStats := make(map[string]domain.UserStats, len(roster))

	type candidate struct {
		userID   string
		score    float64
		earliest time.Time
	}
	var candidates []candidate

	for _, userID := range roster {
		stats := domain.UserStats{
			TotalGroupActionsByType: emptyActionCounts(),
			StreakGain:              opts.PriorStreaks[userID],
		}
		tally := tallies[userID]
		if tally != nil {
			for activityType, count := range tally.counts {
				if activityType.IsGroupAction() {
					stats.TotalGroupActionsByType[activityType] += count
					group.TotalGroupActionsByType[activityType] += count
				}
			}
			stats.TotalMessages = tally.messages
			stats.StreakGain += len(tally.days)
			stats.MostReactedGratitude = tally.gratitude
			group.TotalMessages += tally.messages
			group.TotalEngagedMembers++

			score := scoreTally(tally, opts.Weights)
			if score > 0 && userID != opts.ExcludeUserID {
				candidates = append(candidates, candidate{userID: userID, score: score, earliest: tally.earliest})
			}
		}
		userStats[userID] = stats
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if !candidates[i].earliest.Equal(candidates[j].earliest) {
			return candidates[i].earliest.Before(candidates[j].earliest)
		}
		return candidates[i].userID < candidates[j].userID
	})

	limit := opts.TopContributors
	if limit <= 0 {
		limit = defaultTopContributors
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, c := range candidates {
		group.KeyContributors = append(group.KeyContributors, domain.KeyContributor{UserID: c.userID, Score: c.score})
	}

	return Result{GroupStats: group, UserStats: userStats}, nil
}

func scoreTally(tally *memberTally, weights map[domain.ActivityType]float64) float64 {
	if len(weights) == 0 {
		return float64(tally.total)
	}
	var score float64
	for activityType, count := range tally.counts {
		score += weights[activityType] * float64(count)
	}
	return score
}

// betterGratitude сравнивает кандидатов на «самую отмеченную благодарность»:
// больше реакций, при равенстве — более раннее событие, затем меньший id.
func betterGratitude(current *domain.ActivityEvent, next domain.ActivityEvent) bool {
	if current == nil {
		return true
	}
	if next.Reactions != current.Reactions {
		return next.Reactions > current.Reactions
	}
	if !next.OccurredAt.Equal(current.OccurredAt) {
		return next.OccurredAt.Before(current.OccurredAt)
	}
	return next.ID < current.ID
}

func emptyActionCounts() map[domain.ActivityType]int {
	return map[domain.ActivityType]int{
		domain.ActivityGratitude: 0,
		domain.ActivityPrayer:    0,
	}
}
