package dto

import (
	"time"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

// NotificationResponse represents a stored notification intent.
type NotificationResponse struct {
	ID          uint                   `json:"id"`
	RecipientID uint                   `json:"recipient_id"`
	EventType   string                 `json:"event_type"`
	EntityID    uint                   `json:"entity_id"`
	Payload     map[string]interface{} `json:"payload"`
	Delivered   bool                   `json:"delivered"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          model.ID,
		RecipientID: model.RecipientID,
		EventType:   string(model.EventType),
		EntityID:    model.EntityID,
		Payload:     model.Payload,
		Delivered:   model.Delivered,
		CreatedAt:   model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
