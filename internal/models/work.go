package models

import (
	"time"

	"gorm.io/datatypes"
)

// Work status values. Status only advances forward, except for the
// explicit pause/resume toggle between active and paused.
const (
	StatusActive          = "active"
	StatusCompletionReady = "completion-ready"
	StatusCompleted       = "completed"
	StatusPaused          = "paused"
)

// ValidStatus reports whether s is a known Work status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusCompletionReady, StatusCompleted, StatusPaused:
		return true
	}
	return false
}

// Work is a serialized creative project made of numbered Units.
type Work struct {
	Slug         string         `gorm:"primaryKey;size:64"`
	Title        string         `gorm:"not null"`
	Summary      string         `gorm:"type:text"`
	Status       string         `gorm:"size:24;default:active;index"`
	PlannedUnits int            `gorm:"not null;default:0"`
	UnitCount    int            `gorm:"not null;default:0"`
	ClosingUnits int            `gorm:"not null;default:0"`
	MinWords     int            `gorm:"default:0"`
	MaxWords     int            `gorm:"default:0"`
	Genre        string         `gorm:"size:64"`
	Theme        string         `gorm:"size:64"`
	Variant      string         `gorm:"size:32"`
	Tags         datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time      `gorm:"index"`
	CompletedAt  *time.Time

	Units []Unit `gorm:"foreignKey:WorkSlug;references:Slug"`
}

// Unit kinds.
const (
	UnitRegular  = "regular"
	UnitClosing  = "closing"
	UnitEpilogue = "epilogue"
)

// Unit is one numbered installment of a Work. Units are immutable once
// accepted; numbers per work are contiguous from 1.
type Unit struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	WorkSlug    string    `gorm:"size:64;not null;uniqueIndex:idx_work_unit"`
	Number      int       `gorm:"not null;uniqueIndex:idx_work_unit"`
	Title       string    `gorm:"not null"`
	Body        string    `gorm:"not null"`
	Summary     string    `gorm:"type:text"`
	Kind        string    `gorm:"size:16;default:regular"`
	WordCount   int       `gorm:"not null;default:0"`
	PublishedAt time.Time `gorm:"index"`
	CreatedAt   time.Time
}
