package model

import (
	"time"

	"gorm.io/datatypes"
)

// QuestPlayer is the last known identity of a player that has touched quests.
type QuestPlayer struct {
	PlayerUUID string    `gorm:"primaryKey;size:36" json:"player_uuid"`
	PlayerName string    `gorm:"size:64" json:"player_name"`
	LastSeen   time.Time `json:"last_seen"`
}

func (QuestPlayer) TableName() string { return "quest_players" }

// QuestProgress is the durable form of a progress record. At most one row
// exists per (player_uuid, quest_id).
type QuestProgress struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerUUID  string         `gorm:"size:36;not null;uniqueIndex:idx_player_quest" json:"player_uuid"`
	QuestID     string         `gorm:"size:64;not null;uniqueIndex:idx_player_quest;index" json:"quest_id"`
	Progress    int            `gorm:"not null;default:0" json:"progress"`
	Target      int            `gorm:"not null" json:"target"`
	Completed   bool           `gorm:"not null;default:false" json:"completed"`
	Claimed     bool           `gorm:"not null;default:false" json:"claimed"`
	StartedAt   time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	ExpiresAt   *time.Time     `gorm:"index" json:"expires_at"`
	Extra       datatypes.JSON `json:"extra"` // {"seconds_survived": 42}
}

func (QuestProgress) TableName() string { return "quest_progress" }

// QuestStatistic aggregates completions per (player, quest).
type QuestStatistic struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerUUID      string    `gorm:"size:36;not null;uniqueIndex:idx_stat_player_quest" json:"player_uuid"`
	QuestID         string    `gorm:"size:64;not null;uniqueIndex:idx_stat_player_quest;index" json:"quest_id"`
	Completions     int       `gorm:"not null;default:0" json:"completions"`
	BestTimeMs      int64     `gorm:"not null;default:0" json:"best_time_ms"`
	FirstCompletion time.Time `json:"first_completion"`
	LastCompletion  time.Time `json:"last_completion"`
}

func (QuestStatistic) TableName() string { return "quest_statistics" }
