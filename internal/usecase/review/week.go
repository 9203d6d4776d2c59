package review

import (
	"fmt"
	"time"

	"carry-core/internal/domain"
)

// WeekOf вычисляет идентификатор ISO-недели и её окно для момента времени
// с учётом смещения часового пояса группы в часах от UTC. ISO-неделя всегда
// содержит 7 дней, начинается в понедельник и не пересекает границу года,
// поэтому идентификатор вида YYYY_WW уникален и стабилен.
func WeekOf(at time.Time, tzOffsetHours int) (string, domain.Window) {
	offset := time.Duration(tzOffsetHours) * time.Hour
	local := at.UTC().Add(offset)
	year, week := local.ISOWeek()
	id := fmt.Sprintf("%d_%02d", year, week)

	daysFromMonday := (int(local.Weekday()) + 6) % 7
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	monday := midnight.AddDate(0, 0, -daysFromMonday)

	start := monday.Add(-offset)
	return id, domain.Window{Start: start, End: start.Add(7 * 24 * time.Hour)}
}

// PreviousWeekOf возвращает неделю, предшествующую неделе указанного момента.
func PreviousWeekOf(at time.Time, tzOffsetHours int) (string, domain.Window) {
	return WeekOf(at.AddDate(0, 0, -7), tzOffsetHours)
}
