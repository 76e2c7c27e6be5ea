package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditStatus is the outcome recorded for an audited action
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

// AuditLog records one admin action and its outcome
type AuditLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ActorID    *uint          `gorm:"index" json:"actorId,omitempty"`
	Action     string         `gorm:"not null;index" json:"action"`
	TargetType string         `gorm:"type:varchar(64)" json:"targetType,omitempty"`
	TargetID   string         `gorm:"type:varchar(128);index" json:"targetId,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	Status     AuditStatus    `gorm:"type:varchar(16);not null;default:'success'" json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// TableName specifies the table name for AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}
