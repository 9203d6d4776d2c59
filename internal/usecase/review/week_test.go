package review

import (
	"testing"
	"time"
)

func TestWeekOf(t *testing.T) {
	// Среда 12 марта 2025 — ISO-неделя 11.
	at := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)
	id, window := WeekOf(at, 0)
	if id != "2025_11" {
		t.Fatalf("ожидали 2025_11, получили %s", id)
	}
	wantStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if !window.Start.Equal(wantStart) {
		t.Fatalf("ожидали начало недели в понедельник %v, получили %v", wantStart, window.Start)
	}
	if !window.End.Equal(wantStart.AddDate(0, 0, 7)) {
		t.Fatalf("ожидали окно в 7 дней, получили %v", window.End)
	}
}

func TestWeekOfZeroPadding(t *testing.T) {
	at := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	id, _ := WeekOf(at, 0)
	if id != "2025_01" {
		t.Fatalf("ожидали 2025_01, получили %s", id)
	}
}

func TestWeekOfYearBoundary(t *testing.T) {
	// 30 декабря 2024 принадлежит ISO-неделе 1 следующего года.
	at := time.Date(2024, 12, 30, 10, 0, 0, 0, time.UTC)
	id, _ := WeekOf(at, 0)
	if id != "2025_01" {
		t.Fatalf("ожидали 2025_01 на границе года, получили %s", id)
	}
}

func TestWeekOfTimezoneOffset(t *testing.T) {
	// 20:00 UTC воскресенья — уже понедельник следующей недели при смещении +7.
	at := time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)
	utcID, _ := WeekOf(at, 0)
	localID, window := WeekOf(at, 7)
	if utcID != "2025_10" {
		t.Fatalf("ожидали 2025_10 в UTC, получили %s", utcID)
	}
	if localID != "2025_11" {
		t.Fatalf("ожидали 2025_11 при смещении +7, получили %s", localID)
	}
	// Окно возвращается в UTC: местный понедельник 00:00 минус смещение.
	wantStart := time.Date(2025, 3, 9, 17, 0, 0, 0, time.UTC)
	if !window.Start.Equal(wantStart) {
		t.Fatalf("ожидали начало %v, получили %v", wantStart, window.Start)
	}
}

func TestPreviousWeekOf(t *testing.T) {
	at := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	id, window := PreviousWeekOf(at, 0)
	if id != "2025_10" {
		t.Fatalf("ожидали 2025_10, получили %s", id)
	}
	if !window.End.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("предыдущая неделя должна заканчиваться началом текущей, получили %v", window.End)
	}
}
