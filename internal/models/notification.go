package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationEventType enumerates the intents the engine can emit.
type NotificationEventType string

const (
	NotificationAssignmentPublished NotificationEventType = "assignment_published"
	NotificationAssignmentClosed    NotificationEventType = "assignment_closed"
	NotificationReviewReminder      NotificationEventType = "review_reminder"
)

// Notification is a persisted notification intent awaiting external delivery.
type Notification struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	RecipientID uint                  `gorm:"not null;index" json:"recipient_id"`
	EventType   NotificationEventType `gorm:"size:64;not null" json:"event_type"`
	EntityID    uint                  `gorm:"not null" json:"entity_id"`
	Payload     datatypes.JSONMap     `gorm:"type:json" json:"payload"`
	Delivered   bool                  `gorm:"not null;default:false" json:"delivered"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}
