package models

import (
	"time"

	"gorm.io/datatypes"
)

// Character is a profile in a work's character arena. ID is a stable UUID;
// Name is a display attribute and may change.
type Character struct {
	ID            string         `gorm:"primaryKey;size:36"`
	WorkSlug      string         `gorm:"size:64;not null;index"`
	Name          string         `gorm:"size:128;not null"`
	Aliases       datatypes.JSON `gorm:"type:json"` // JSON array of names
	Role          string         `gorm:"size:16;default:supporting"` // main, supporting, minor
	Abilities     datatypes.JSON `gorm:"type:json"` // JSON array
	Traits        datatypes.JSON `gorm:"type:json"` // JSON array
	Relationships datatypes.JSON `gorm:"type:json"` // JSON object: character ID -> label
	Location      string         `gorm:"size:128"`
	Emotion       string         `gorm:"size:64"`
	PowerLevel    int            `gorm:"default:0"`
	Deceased      bool           `gorm:"default:false"`
	Developments  int            `gorm:"default:0"`
	IntroducedIn  int            `gorm:"default:0"`
	LastSeenIn    int            `gorm:"default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WorldRule is a setting rule. Rules are immutable unless Amendable, and an
// amendment needs an EstablishedFact citing the unit that introduced it.
type WorldRule struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"`
	WorkSlug     string         `gorm:"size:64;not null;uniqueIndex:idx_work_rule"`
	Key          string         `gorm:"size:128;not null;uniqueIndex:idx_work_rule"`
	Category     string         `gorm:"size:32"` // magic, physics, geography, society, ...
	Statement    string         `gorm:"type:text;not null"`
	Forbids      datatypes.JSON `gorm:"type:json"` // JSON array of phrases that violate the rule
	Amendable    bool           `gorm:"default:false"`
	IntroducedIn int            `gorm:"default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EstablishedFact records an amendment to an amendable world rule.
type EstablishedFact struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	WorkSlug   string `gorm:"size:64;not null;index"`
	RuleKey    string `gorm:"size:128;not null"`
	Statement  string `gorm:"type:text;not null"`
	UnitNumber int    `gorm:"not null"`
	CreatedAt  time.Time
}

// Plot thread kinds.
const (
	ThreadSubplot       = "subplot"
	ThreadForeshadowing = "foreshadowing"
	ThreadPromise       = "promise"
	ThreadConflict      = "conflict"
)

// PlotThread is an open or resolved subplot, foreshadowing, promise, or
// conflict. ResolvedIn is nil while open.
type PlotThread struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"`
	WorkSlug     string         `gorm:"size:64;not null;uniqueIndex:idx_work_thread"`
	Key          string         `gorm:"size:128;not null;uniqueIndex:idx_work_thread"`
	Kind         string         `gorm:"size:16;not null;index"`
	Description  string         `gorm:"type:text"`
	Participants datatypes.JSON `gorm:"type:json"` // JSON array of character IDs
	OpenedIn     int            `gorm:"not null"`
	ResolvedIn   *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Checkpoint is a significant event on a work's timeline.
type Checkpoint struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"`
	WorkSlug     string         `gorm:"size:64;not null;index:idx_work_checkpoint"`
	UnitNumber   int            `gorm:"not null;index:idx_work_checkpoint"`
	Event        string         `gorm:"type:text;not null"`
	Participants datatypes.JSON `gorm:"type:json"` // JSON array of character IDs
	Location     string         `gorm:"size:128"`
	StoryDay     int            `gorm:"default:0"`
	Significance int            `gorm:"default:1"` // 1..5
	CreatedAt    time.Time
}

// StoryState holds per-work narrative state that is not attached to a
// single entity.
type StoryState struct {
	WorkSlug    string `gorm:"primaryKey;size:64"`
	ArcStage    string `gorm:"size:32"`
	Cliffhanger string `gorm:"type:text"`
	LastEnding  string `gorm:"type:text"`
	LastUnit    int    `gorm:"default:0"`
	StoryDay    int    `gorm:"default:0"`
	UpdatedAt   time.Time
}
