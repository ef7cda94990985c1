package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one mutating admin or game-server request.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	PlayerUUID string         `gorm:"index:idx_audit_player;size:36" json:"player_uuid,omitempty"`
	QuestID    string         `gorm:"size:64" json:"quest_id,omitempty"`
	Action     string         `gorm:"size:128;not null" json:"action"`
	Status     int            `json:"status"`
	Request    datatypes.JSON `json:"request,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}

func (AuditLog) TableName() string { return "quest_audit_logs" }
