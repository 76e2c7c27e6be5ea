// Package audit writes the admin action log. Recording is fire-and-forget:
// a failed write is logged and never returned to the caller.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/models"
)

// Entry is one audited action. A non-nil Err marks it as a failure.
type Entry struct {
	ActorID    *uint
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]interface{}
	Err        error
}

// Log converts the entry into its audit row
func (e Entry) Log(at time.Time) *models.AuditLog {
	details := make(map[string]interface{}, len(e.Details)+2)
	for k, v := range e.Details {
		details[k] = v
	}
	status := models.AuditSuccess
	if e.Err != nil {
		status = models.AuditFailure
		details["error"] = e.Err.Error()
		details["code"] = apperr.CodeOf(e.Err)
	}

	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte(`{"error":"details not serializable"}`)
	}
	return &models.AuditLog{
		ActorID:    e.ActorID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Details:    datatypes.JSON(raw),
		Status:     status,
		CreatedAt:  at,
	}
}

// Recorder stores audit entries with gorm
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewRecorder creates a recorder. db must not be a transaction that may roll back.
func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Record writes e outside any caller transaction
func (r *Recorder) Record(ctx context.Context, e Entry) {
	row := e.Log(time.Now().UTC())
	if err := r.db.WithContext(context.WithoutCancel(ctx)).Create(row).Error; err != nil {
		r.log.Error("failed to write audit entry",
			zap.String("action", e.Action),
			zap.String("target_id", e.TargetID),
			zap.Error(err),
		)
	}
}

// Nop discards entries
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
