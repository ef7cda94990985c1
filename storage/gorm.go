package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on any gorm dialect.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// extra is the JSON shape of QuestProgress.Extra.
type extra struct {
	SecondsSurvived *int `json:"seconds_survived,omitempty"`
}

func toRow(r progress.Record) (*model.QuestProgress, error) {
	row := &model.QuestProgress{
		PlayerUUID:  r.PlayerID.String(),
		QuestID:     r.QuestID,
		Progress:    r.Progress,
		Target:      r.Target,
		Completed:   r.Completed,
		Claimed:     r.Claimed,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		ExpiresAt:   r.ExpiresAt,
	}
	var ex extra
	if r.Survive != nil {
		s := r.Survive.Seconds
		ex.SecondsSurvived = &s
	}
	raw, err := json.Marshal(ex)
	if err != nil {
		return nil, err
	}
	row.Extra = datatypes.JSON(raw)
	return row, nil
}

func fromRow(row *model.QuestProgress) (*progress.Record, error) {
	id, err := uuid.Parse(row.PlayerUUID)
	if err != nil {
		return nil, fmt.Errorf("bad player uuid %q: %w", row.PlayerUUID, err)
	}
	r := &progress.Record{
		PlayerID:    id,
		QuestID:     row.QuestID,
		Target:      row.Target,
		Progress:    row.Progress,
		Completed:   row.Completed,
		Claimed:     row.Claimed,
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		ExpiresAt:   row.ExpiresAt,
	}
	if len(row.Extra) > 0 {
		var ex extra
		if err := json.Unmarshal(row.Extra, &ex); err == nil && ex.SecondsSurvived != nil {
			r.Survive = &quest.SurviveState{Seconds: *ex.SecondsSurvived}
		}
	}
	return r, nil
}

// SaveProgress upserts on (player_uuid, quest_id).
func (s *GormStore) SaveProgress(ctx context.Context, r progress.Record) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_uuid"}, {Name: "quest_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"progress", "target", "completed", "claimed",
			"started_at", "completed_at", "expires_at", "extra",
		}),
	}).Create(row).Error
}

func (s *GormStore) LoadProgress(ctx context.Context, player uuid.UUID) ([]*progress.Record, error) {
	var rows []model.QuestProgress
	if err := s.db.WithContext(ctx).
		Where("player_uuid = ?", player.String()).
		Order("quest_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*progress.Record, 0, len(rows))
	for i := range rows {
		r, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *GormStore) GetProgress(ctx context.Context, player uuid.UUID, questID string) (*progress.Record, error) {
	var row model.QuestProgress
	err := s.db.WithContext(ctx).
		Where("player_uuid = ? AND quest_id = ?", player.String(), questID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row)
}

func (s *GormStore) DeleteProgress(ctx context.Context, player uuid.UUID, questID string) error {
	return s.db.WithContext(ctx).
		Where("player_uuid = ? AND quest_id = ?", player.String(), questID).
		Delete(&model.QuestProgress{}).Error
}

func (s *GormStore) DeletePlayer(ctx context.Context, player uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("player_uuid = ?", player.String()).Delete(&model.QuestProgress{}).Error; err != nil {
			return err
		}
		return tx.Where("player_uuid = ?", player.String()).Delete(&model.QuestStatistic{}).Error
	})
}

func (s *GormStore) CountActive(ctx context.Context, player uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.QuestProgress{}).
		Where("player_uuid = ? AND completed = ? AND claimed = ?", player.String(), false, false).
		Count(&n).Error
	return n, err
}

func (s *GormStore) CountCompleted(ctx context.Context, player uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.QuestProgress{}).
		Where("player_uuid = ? AND completed = ?", player.String(), true).
		Count(&n).Error
	return n, err
}

// RecordCompletionStatistic bumps the completion counter and keeps the
// fastest completion time.
func (s *GormStore) RecordCompletionStatistic(ctx context.Context, player uuid.UUID, questID string, took time.Duration, at time.Time) error {
	ms := took.Milliseconds()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stat model.QuestStatistic
		err := tx.Where("player_uuid = ? AND quest_id = ?", player.String(), questID).First(&stat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.QuestStatistic{
				PlayerUUID:      player.String(),
				QuestID:         questID,
				Completions:     1,
				BestTimeMs:      ms,
				FirstCompletion: at,
				LastCompletion:  at,
			}).Error
		}
		if err != nil {
			return err
		}
		best := stat.BestTimeMs
		if best <= 0 || ms < best {
			best = ms
		}
		return tx.Model(&stat).Updates(map[string]interface{}{
			"completions":     gorm.Expr("completions + ?", 1),
			"best_time_ms":    best,
			"last_completion": at,
		}).Error
	})
}

func (s *GormStore) UpsertPlayer(ctx context.Context, player uuid.UUID, name string, seen time.Time) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"player_name", "last_seen"}),
	}).Create(&model.QuestPlayer{
		PlayerUUID: player.String(),
		PlayerName: name,
		LastSeen:   seen,
	}).Error
}

func (s *GormStore) PlayerStatistics(ctx context.Context, player uuid.UUID) ([]PlayerQuestStat, error) {
	var rows []model.QuestStatistic
	if err := s.db.WithContext(ctx).
		Where("player_uuid = ?", player.String()).
		Order("quest_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]PlayerQuestStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, PlayerQuestStat{
			QuestID:         r.QuestID,
			Completions:     r.Completions,
			BestTime:        time.Duration(r.BestTimeMs) * time.Millisecond,
			FirstCompletion: r.FirstCompletion,
			LastCompletion:  r.LastCompletion,
		})
	}
	return out, nil
}

func (s *GormStore) QuestStatistics(ctx context.Context, questID string) (QuestStats, error) {
	out := QuestStats{QuestID: questID}
	var agg struct {
		Completions int64
		Players     int64
		BestTimeMs  int64
	}
	if err := s.db.WithContext(ctx).Model(&model.QuestStatistic{}).
		Select("COALESCE(SUM(completions), 0) AS completions, COUNT(*) AS players, COALESCE(MIN(best_time_ms), 0) AS best_time_ms").
		Where("quest_id = ?", questID).
		Scan(&agg).Error; err != nil {
		return out, err
	}
	out.Completions = agg.Completions
	out.Players = agg.Players
	out.BestTime = time.Duration(agg.BestTimeMs) * time.Millisecond

	if err := s.db.WithContext(ctx).Model(&model.QuestProgress{}).
		Where("quest_id = ? AND completed = ?", questID, false).
		Count(&out.Active).Error; err != nil {
		return out, err
	}
	return out, nil
}

func (s *GormStore) GlobalStatistics(ctx context.Context) (GlobalStats, error) {
	var out GlobalStats
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.QuestPlayer{}).Count(&out.Players).Error; err != nil {
		return out, err
	}
	if err := db.Model(&model.QuestProgress{}).Where("completed = ?", false).Count(&out.ActiveRecords).Error; err != nil {
		return out, err
	}
	if err := db.Model(&model.QuestProgress{}).Where("completed = ?", true).Count(&out.CompletedRecords).Error; err != nil {
		return out, err
	}
	var total struct{ Total int64 }
	if err := db.Model(&model.QuestStatistic{}).
		Select("COALESCE(SUM(completions), 0) AS total").
		Scan(&total).Error; err != nil {
		return out, err
	}
	out.TotalCompletions = total.Total
	return out, nil
}
