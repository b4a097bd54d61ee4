package data

import (
	"sync"
	"time"

	"github.com/tauraamui/wormhole/pkg/database/models"
	"github.com/tauraamui/wormhole/pkg/database/repos"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/stream"
)

// History records every stream session's lifetime to the database.
type History struct {
	mu         sync.Mutex
	repo       repos.SessionRepository
	maxRecords int
}

func NewHistory(db repos.GormWrapper, maxRecords int) *History {
	return &History{repo: repos.SessionRepository{DB: db}, maxRecords: maxRecords}
}

func (h *History) SessionOpened(info stream.Info) {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.repo.Create(&models.Session{
		UUID:       info.ID,
		Route:      info.Route,
		RemoteAddr: info.RemoteAddr,
		StartedAt:  info.StartedAt,
	})
	if err != nil {
		log.Error("Unable to record stream session [%s]: %v", info.ID, err)
	}
}

func (h *History) FrameSent(stream.Info, int, time.Duration) {}

func (h *History) SessionFailed(stream.Info, stream.ErrorKind) {}

func (h *History) SessionClosed(info stream.Info) {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.repo.Finish(info.ID, time.Now(), info.FramesSent, info.BytesSent, info.Failures, info.CloseReason)
	if err != nil {
		log.Error("Unable to record end of stream session [%s]: %v", info.ID, err)
		return
	}
	if err := h.repo.Prune(h.maxRecords); err != nil {
		log.Error("%v", err)
	}
}

func (h *History) Recent(limit int) ([]models.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.repo.Recent(limit)
}
