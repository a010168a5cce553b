package models

import "time"

// RunRecord is the persisted outcome of one orchestrator run.
type RunRecord struct {
	ID       string `gorm:"primaryKey;size:36"`
	Action   string `gorm:"size:16;index"`
	WorkSlug string `gorm:"size:64;index"`
	Success  bool   `gorm:"index"`
	Stage    string `gorm:"size:24"`
	Message  string `gorm:"type:text"`
	// Units lists the committed unit numbers, comma-separated.
	Units string `gorm:"size:255"`
	// Situation is the JSON snapshot the decision was made from.
	Situation  string    `gorm:"type:text"`
	Trigger    string    `gorm:"size:16;default:manual"` // manual, daemon
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	DurationMs int64
}

// GenerationLog captures the size and latency of each generator call.
type GenerationLog struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RunID         string `gorm:"size:36;index"`
	WorkSlug      string `gorm:"size:64;index"`
	Operation     string `gorm:"size:32"`
	RequestBytes  int
	ResponseBytes int
	LatencyMs     int64
	Error         string `gorm:"type:text"`
	CreatedAt     time.Time
}

// RunLease is a single-holder lease that keeps scheduled runs exclusive.
type RunLease struct {
	Name          string    `gorm:"primaryKey;size:64"`
	Holder        string    `gorm:"size:128;not null"`
	Status        string    `gorm:"size:16;default:active;index"` // active, released, expired
	LastHeartbeat time.Time `gorm:"index"`
	AcquiredAt    time.Time
	ReleasedAt    *time.Time
}
