package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carry-core/internal/domain"
	"carry-core/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.GroupRepo  = (*Postgres)(nil)
	_ domain.EventRepo  = (*Postgres)(nil)
	_ domain.ReviewRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetGroup возвращает группу по идентификатору.
func (p *Postgres) GetGroup(ctx context.Context, groupID string) (domain.Group, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var group domain.Group
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, name, owner_id, timezone_offset, created_at
FROM groups
WHERE id = $1
`, groupID).Scan(&group.ID, &group.Name, &group.OwnerID, &group.TimezoneOffset, &group.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "groups_get", "groups", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Group{}, domain.ErrGroupNotFound
		}
		return domain.Group{}, err
	}
	return group, nil
}

// ListGroupIDs возвращает идентификаторы всех групп.
func (p *Postgres) ListGroupIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id FROM groups ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "groups_list", "groups", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Roster возвращает состав группы.
func (p *Postgres) Roster(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT group_id, user_id, streak, joined_at
FROM group_members
WHERE group_id = $1
ORDER BY user_id
`, groupID)
	metrics.ObserveNetworkRequest("postgres", "members_list", "group_members", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.GroupMember
	for rows.Next() {
		var member domain.GroupMember
		if err := rows.Scan(&member.GroupID, &member.UserID, &member.Streak, &member.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// AcquireRollupTask помечает неделю группы как взятую в работу. Возвращает
// false, если другой процесс уже успел создать запись.
func (p *Postgres) AcquireRollupTask(ctx context.Context, groupID, weekID string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO rollup_tasks (group_id, week_id, acquired_at)
VALUES ($1, $2, now())
ON CONFLICT (group_id, week_id) DO NOTHING
`, groupID, weekID)
	metrics.ObserveNetworkRequest("postgres", "rollup_task_acquire", "rollup_tasks", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveEvent сохраняет каноническое событие активности. Повторная доставка
// одного события провайдером не создаёт дубликат.
func (p *Postgres) SaveEvent(ctx context.Context, event domain.ActivityEvent) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO activity_events (id, group_id, actor_id, type, action_id, message_id, reactions, occurred_at)
VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), $7, $8)
ON CONFLICT (id) DO UPDATE SET reactions = EXCLUDED.reactions
`, event.ID, event.GroupID, event.ActorID, string(event.Type), event.ActionID, event.MessageID, event.Reactions, event.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "events_insert", "activity_events", start, err)
	if err != nil {
		return fmt.Errorf("сохранение события: %w", err)
	}
	return nil
}

// ApplyReaction увеличивает счётчик реакций действия группы.
func (p *Postgres) ApplyReaction(ctx context.Context, groupID, actionID string, delta int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE activity_events
SET reactions = GREATEST(reactions + $3, 0)
WHERE group_id = $1 AND action_id = $2
`, groupID, actionID, delta)
	metrics.ObserveNetworkRequest("postgres", "events_reaction", "activity_events", start, err)
	if err != nil {
		return fmt.Errorf("обновление реакций: %w", err)
	}
	return nil
}

// ListEvents возвращает события группы в окне [Start, End).
func (p *Postgres) ListEvents(ctx context.Context, groupID string, window domain.Window) ([]domain.ActivityEvent, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, group_id, actor_id, type, COALESCE(action_id,''), COALESCE(message_id,''), reactions, occurred_at
FROM activity_events
WHERE group_id = $1 AND occurred_at >= $2 AND occurred_at < $3
ORDER BY occurred_at, id
`, groupID, window.Start, window.End)
	metrics.ObserveNetworkRequest("postgres", "events_list", "activity_events", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ActivityEvent
	for rows.Next() {
		var event domain.ActivityEvent
		var activityType string
		if err := rows.Scan(&event.ID, &event.GroupID, &event.ActorID, &activityType, &event.ActionID, &event.MessageID, &event.Reactions, &event.OccurredAt); err != nil {
			return nil, err
		}
		event.Type = domain.ActivityType(activityType)
		event.OccurredAt = event.OccurredAt.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveReview сохраняет снимок недельной сводки. Повторное построение той же
// недели перезаписывает снимок.
func (p *Postgres) SaveReview(ctx context.Context, review domain.WeeklyReview) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	payload, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO weekly_reviews (group_id, week_id, start_time, end_time, payload, built_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (group_id, week_id) DO UPDATE SET
	start_time = EXCLUDED.start_time,
	end_time = EXCLUDED.end_time,
	payload = EXCLUDED.payload,
	built_at = EXCLUDED.built_at
`, review.GroupID, review.WeekID, review.StartTime, review.EndTime, payload, review.BuiltAt)
	metrics.ObserveNetworkRequest("postgres", "reviews_upsert", "weekly_reviews", start, err)
	if err != nil {
		return fmt.Errorf("сохранение сводки: %w", err)
	}
	return nil
}

// GetReview возвращает сводку группы за указанную неделю.
func (p *Postgres) GetReview(ctx context.Context, groupID, weekID string) (domain.WeeklyReview, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var payload []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT payload
FROM weekly_reviews
WHERE group_id = $1 AND week_id = $2
`, groupID, weekID).Scan(&payload)
	metrics.ObserveNetworkRequest("postgres", "reviews_get", "weekly_reviews", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WeeklyReview{}, domain.ErrReviewNotFound
		}
		return domain.WeeklyReview{}, err
	}
	return decodeReview(payload)
}

// LatestReviewBefore возвращает последнюю сводку, завершившуюся до указанного момента.
func (p *Postgres) LatestReviewBefore(ctx context.Context, groupID string, before time.Time) (domain.WeeklyReview, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var payload []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT payload
FROM weekly_reviews
WHERE group_id = $1 AND end_time <= $2
ORDER BY end_time DESC
LIMIT 1
`, groupID, before).Scan(&payload)
	metrics.ObserveNetworkRequest("postgres", "reviews_latest", "weekly_reviews", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WeeklyReview{}, domain.ErrReviewNotFound
		}
		return domain.WeeklyReview{}, err
	}
	return decodeReview(payload)
}

func decodeReview(payload []byte) (domain.WeeklyReview, error) {
	var review domain.WeeklyReview
	if err := json.Unmarshal(payload, &review); err != nil {
		return domain.WeeklyReview{}, fmt.Errorf("decode review: %w", err)
	}
	return review, nil
}

// EnsureRollupJob регистрирует попытку обработки задачи. Возвращает признак
// завершённости и номер текущей попытки.
func (p *Postgres) EnsureRollupJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		done    bool
		attempt int
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO rollup_jobs (id, attempts, done, updated_at)
VALUES ($1, 1, false, now())
ON CONFLICT (id) DO UPDATE SET
	attempts = rollup_jobs.attempts + CASE WHEN rollup_jobs.done THEN 0 ELSE 1 END,
	updated_at = now()
RETURNING done, attempts
`, jobID).Scan(&done, &attempt)
	metrics.ObserveNetworkRequest("postgres", "rollup_job_ensure", "rollup_jobs", start, err)
	if err != nil {
		return false, 0, err
	}
	return done, attempt, nil
}

// MarkRollupJobDone помечает задачу завершённой.
func (p *Postgres) MarkRollupJobDone(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE rollup_jobs
SET done = true, updated_at = now()
WHERE id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "rollup_job_done", "rollup_jobs", start, err)
	return err
}
