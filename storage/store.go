package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/progress"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// QuestStats aggregates completions of one quest across all players.
type QuestStats struct {
	QuestID     string        `json:"quest_id"`
	Completions int64         `json:"completions"`
	Players     int64         `json:"players"`
	BestTime    time.Duration `json:"best_time"`
	Active      int64         `json:"active"`
}

// PlayerQuestStat is one player's history on one quest.
type PlayerQuestStat struct {
	QuestID         string        `json:"quest_id"`
	Completions     int           `json:"completions"`
	BestTime        time.Duration `json:"best_time"`
	FirstCompletion time.Time     `json:"first_completion"`
	LastCompletion  time.Time     `json:"last_completion"`
}

// GlobalStats aggregates the whole quest history.
type GlobalStats struct {
	Players          int64 `json:"players"`
	ActiveRecords    int64 `json:"active_records"`
	CompletedRecords int64 `json:"completed_records"`
	TotalCompletions int64 `json:"total_completions"`
}

// Store is the durable home of quest progress and statistics.
type Store interface {
	SaveProgress(ctx context.Context, r progress.Record) error
	LoadProgress(ctx context.Context, player uuid.UUID) ([]*progress.Record, error)
	GetProgress(ctx context.Context, player uuid.UUID, questID string) (*progress.Record, error)
	DeleteProgress(ctx context.Context, player uuid.UUID, questID string) error
	// DeletePlayer removes every progress and statistic row of a player.
	DeletePlayer(ctx context.Context, player uuid.UUID) error

	CountActive(ctx context.Context, player uuid.UUID) (int64, error)
	CountCompleted(ctx context.Context, player uuid.UUID) (int64, error)

	RecordCompletionStatistic(ctx context.Context, player uuid.UUID, questID string, took time.Duration, at time.Time) error
	UpsertPlayer(ctx context.Context, player uuid.UUID, name string, seen time.Time) error

	PlayerStatistics(ctx context.Context, player uuid.UUID) ([]PlayerQuestStat, error)
	QuestStatistics(ctx context.Context, questID string) (QuestStats, error)
	GlobalStatistics(ctx context.Context) (GlobalStats, error)
}
