package model

import (
	"time"

	"gorm.io/datatypes"
)

// Outcomes recorded for processed webhook events
const (
	WebhookOutcomeApplied  = "applied"
	WebhookOutcomeStale    = "stale"
	WebhookOutcomeIgnored  = "ignored"
	WebhookOutcomeNotFound = "not_found"
)

// WebhookEvent is the audit row written for every authenticated webhook
type WebhookEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time      `json:"createdAt"`
	Provider       string         `gorm:"type:varchar(30);not null" json:"provider"`
	EventType      string         `gorm:"type:varchar(60);not null;index" json:"eventType"`
	Reference      string         `gorm:"type:varchar(120);index" json:"reference"`
	EventTimestamp time.Time      `json:"eventTimestamp"`
	Payload        datatypes.JSON `json:"payload"`
	Outcome        string         `gorm:"type:varchar(20)" json:"outcome"`
}
