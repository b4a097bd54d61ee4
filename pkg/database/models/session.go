package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func init() {
	registerForAutomigration(&Session{})
}

// Session records a single client's stream from connect to close.
type Session struct {
	gorm.Model
	UUID        string `gorm:"uniqueIndex"`
	Route       string `gorm:"index"`
	RemoteAddr  string
	StartedAt   time.Time
	EndedAt     *time.Time
	FramesSent  uint64
	BytesSent   uint64
	Failures    uint64
	CloseReason string
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if len(s.UUID) == 0 {
		s.UUID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	return nil
}

// Open reports whether the session has not been finished yet.
func (s Session) Open() bool {
	return s.EndedAt == nil
}
