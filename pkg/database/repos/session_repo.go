package repos

import (
	"time"

	"github.com/tauraamui/wormhole/pkg/database/models"
	"github.com/tauraamui/xerror"
)

type SessionRepository struct {
	DB GormWrapper
}

func (r *SessionRepository) Create(session *models.Session) error {
	return r.DB.Create(session).Error()
}

// Finish stamps the end of the session of uuid along with its totals.
func (r *SessionRepository) Finish(uuid string, endedAt time.Time, framesSent, bytesSent, failures uint64, reason string) error {
	result := r.DB.Model(&models.Session{}).Where("uuid = ?", uuid).Updates(map[string]interface{}{
		"ended_at":     endedAt,
		"frames_sent":  framesSent,
		"bytes_sent":   bytesSent,
		"failures":     failures,
		"close_reason": reason,
	})
	if err := result.Error(); err != nil {
		return xerror.Errorf("unable to finish session %s: %w", uuid, err)
	}
	if result.RowsAffected() == 0 {
		return xerror.Errorf("session of uuid %s not found", uuid)
	}
	return nil
}

func (r *SessionRepository) FindByUUID(uuid string) (models.Session, error) {
	session := models.Session{}
	if err := r.DB.Where("uuid = ?", uuid).First(&session).Error(); err != nil {
		return session, xerror.Errorf("session of uuid %s not found", uuid)
	}

	return session, nil
}

// Recent lists up to limit sessions, newest first.
func (r *SessionRepository) Recent(limit int) ([]models.Session, error) {
	sessions := []models.Session{}
	if err := r.DB.Order("started_at desc, id desc").Limit(limit).Find(&sessions).Error(); err != nil {
		return nil, xerror.Errorf("unable to list recent sessions: %w", err)
	}
	return sessions, nil
}

// Prune deletes everything but the newest keep sessions.
func (r *SessionRepository) Prune(keep int) error {
	if keep <= 0 {
		return nil
	}
	ids := []uint{}
	if err := r.DB.Model(&models.Session{}).Order("id desc").Limit(keep).Pluck("id", &ids).Error(); err != nil {
		return xerror.Errorf("unable to prune sessions: %w", err)
	}
	if len(ids) < keep {
		return nil
	}
	if err := r.DB.Unscoped().Where("id NOT IN ?", ids).Delete(&models.Session{}).Error(); err != nil {
		return xerror.Errorf("unable to prune sessions: %w", err)
	}
	return nil
}
