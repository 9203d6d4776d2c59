package domain

import (
	"context"
	"time"
)

// RollupJobCause описывает источник задачи на сводку.
type RollupJobCause string

const (
	// RollupCauseManual — сводку запросили вручную через API.
	RollupCauseManual RollupJobCause = "manual"
	// RollupCauseScheduled — сводка запланирована по завершении недели.
	RollupCauseScheduled RollupJobCause = "scheduled"
)

// RollupJob содержит информацию о задаче построения недельной сводки.
// At — любой момент внутри целевой недели.
type RollupJob struct {
	ID          string         `json:"job_id,omitempty"`
	GroupID     string         `json:"group_id"`
	At          time.Time      `json:"at"`
	RequestedAt time.Time      `json:"requested_at"`
	Cause       RollupJobCause `json:"cause"`
}

// RollupAckFunc подтверждает успешную обработку или возвращает задачу в очередь.
type RollupAckFunc func(success bool) error

// RollupQueue описывает очередь задач на построение сводок.
type RollupQueue interface {
	Enqueue(ctx context.Context, job RollupJob) error
	Receive(ctx context.Context) (RollupJob, RollupAckFunc, error)
}
