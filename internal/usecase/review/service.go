package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"carry-core/internal/domain"
	"carry-core/internal/infra/metrics"
	"carry-core/internal/usecase/rollup"
)

// ErrNotAvailable возвращается, если сводка недоступна запрашивающему:
// она ещё не построена либо пользователь не участвовал в неделе.
var ErrNotAvailable = errors.New("сводка за неделю недоступна")

// Config задаёт параметры построения сводок.
type Config struct {
	// Weights — веса категорий для рейтинга вовлечённых. Пустая карта — равные.
	Weights map[domain.ActivityType]float64
	// TopContributors — длина рейтинга. 0 — значение движка по умолчанию.
	TopContributors int
	// UseCurrentWeek отдаёт незавершённую неделю вместо предыдущей.
	UseCurrentWeek bool
	// CacheTTL — время жизни кэша выдачи. 0 отключает кэш.
	CacheTTL time.Duration
}

// UserReview — выдача сводки одному пользователю: статистика группы целиком
// и собственная статистика, если пользователь участвовал в неделе.
type UserReview struct {
	WeekID     string            `json:"week_id"`
	GroupStats domain.GroupStats `json:"group_stats"`
	UserStats  *domain.UserStats `json:"user_stats,omitempty"`
}

// Service строит и выдаёт недельные сводки групп.
type Service struct {
	groups  domain.GroupRepo
	events  domain.EventRepo
	reviews domain.ReviewRepo
	engine  *rollup.Engine
	cache   domain.Cache
	cfg     Config
	log     zerolog.Logger
}

// NewService создаёт сервис сводок.
func NewService(groups domain.GroupRepo, events domain.EventRepo, reviews domain.ReviewRepo, engine *rollup.Engine, cache domain.Cache, cfg Config, logger zerolog.Logger) *Service {
	return &Service{groups: groups, events: events, reviews: reviews, engine: engine, cache: cache, cfg: cfg, log: logger}
}

// BuildForTime строит и сохраняет сводку за ISO-неделю, содержащую указанный
// момент, в часовом поясе группы. Повторный вызов за ту же неделю
// детерминированно перезаписывает снимок тем же содержимым.
func (s *Service) BuildForTime(ctx context.Context, groupID string, at time.Time) (domain.WeeklyReview, error) {
	start := time.Now()

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return domain.WeeklyReview{}, fmt.Errorf("получение группы: %w", err)
	}
	weekID, window := WeekOf(at, group.TimezoneOffset)

	roster, err := s.groups.Roster(ctx, groupID)
	if err != nil {
		return domain.WeeklyReview{}, fmt.Errorf("состав группы: %w", err)
	}
	rosterIDs := make([]string, 0, len(roster))
	priorStreaks := make(map[string]int, len(roster))
	for _, member := range roster {
		rosterIDs = append(rosterIDs, member.UserID)
		priorStreaks[member.UserID] = member.Streak
	}

	events, err := s.events.ListEvents(ctx, groupID, window)
	if err != nil {
		return domain.WeeklyReview{}, fmt.Errorf("события недели: %w", err)
	}

	result, err := s.engine.Rollup(events, rosterIDs, window, rollup.Options{
		Weights:         s.cfg.Weights,
		TopContributors: s.cfg.TopContributors,
		PriorStreaks:    priorStreaks,
		ExcludeUserID:   group.OwnerID,
	})
	if err != nil {
		return domain.WeeklyReview{}, fmt.Errorf("агрегация недели: %w", err)
	}

	weekly := domain.WeeklyReview{
		WeekID:     weekID,
		GroupID:    groupID,
		StartTime:  window.Start,
		EndTime:    window.End,
		GroupStats: result.GroupStats,
		UserStats:  result.UserStats,
		BuiltAt:    time.Now().UTC(),
	}
	if err := s.reviews.SaveReview(ctx, weekly); err != nil {
		return domain.WeeklyReview{}, fmt.Errorf("сохранение сводки: %w", err)
	}

	metrics.RollupBuildSeconds.Observe(time.Since(start).Seconds())
	s.log.Info().Str("group", groupID).Str("week", weekID).
		Int("events", len(events)).Int("members", len(rosterIDs)).
		Msg("review: сводка построена")
	return weekly, nil
}

// GetForUser возвращает сводку группы глазами пользователя: по умолчанию —
// за предыдущую завершённую неделю. Владелец группы видит сводку даже без
// собственной статистики, остальным она доступна только при участии.
func (s *Service) GetForUser(ctx context.Context, groupID, userID string) (UserReview, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return UserReview{}, fmt.Errorf("получение группы: %w", err)
	}

	weekly, err := s.loadReview(ctx, group)
	if err != nil {
		if errors.Is(err, domain.ErrReviewNotFound) {
			return UserReview{}, ErrNotAvailable
		}
		return UserReview{}, err
	}

	metrics.ReviewRequestsTotal.Inc()
	metrics.IncReviewForGroup(groupID)

	stats, participated := weekly.UserStats[userID]
	isOwner := userID == group.OwnerID
	if !participated && !isOwner {
		return UserReview{}, ErrNotAvailable
	}

	out := UserReview{WeekID: weekly.WeekID, GroupStats: weekly.GroupStats}
	if participated {
		out.UserStats = &stats
	}
	return out, nil
}

func (s *Service) loadReview(ctx context.Context, group domain.Group) (domain.WeeklyReview, error) {
	now := time.Now().UTC()
	if s.cfg.UseCurrentWeek {
		weekID, _ := WeekOf(now, group.TimezoneOffset)
		return s.cachedReview(ctx, group.ID, weekID)
	}

	weekly, err := s.reviews.LatestReviewBefore(ctx, group.ID, now)
	if err != nil {
		return domain.WeeklyReview{}, err
	}
	return weekly, nil
}

func (s *Service) cachedReview(ctx context.Context, groupID, weekID string) (domain.WeeklyReview, error) {
	key := "weekly_review:" + groupID + ":" + weekID
	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if raw, err := s.cache.Get(key); err == nil {
			var weekly domain.WeeklyReview
			if err := json.Unmarshal(raw, &weekly); err == nil {
				return weekly, nil
			}
		}
	}
	weekly, err := s.reviews.GetReview(ctx, groupID, weekID)
	if err != nil {
		return domain.WeeklyReview{}, err
	}
	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if raw, err := json.Marshal(weekly); err == nil {
			if err := s.cache.Set(key, raw, s.cfg.CacheTTL); err != nil {
				s.log.Debug().Err(err).Msg("review: кэш недоступен")
			}
		}
	}
	return weekly, nil
}
