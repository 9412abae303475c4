package model

import "time"

// NotificationVariant mirrors toast styling: informational or destructive.
type NotificationVariant string

const (
	NotificationDefault     NotificationVariant = "default"
	NotificationDestructive NotificationVariant = "destructive"
)

// Notification is a transient, user-facing description of a store change
// or a failed operation.
type Notification struct {
	ID          string              `json:"id"`
	EventType   string              `json:"eventType"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Variant     NotificationVariant `json:"variant"`
	CreatedAt   time.Time           `json:"createdAt"`
}
