package model

import (
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionFailed    SubscriptionStatus = "FAILED"
	SubscriptionInactive  SubscriptionStatus = "INACTIVE"
)

// Subscription is the single paid-plan subscription of a user. Status only
// changes through payment webhooks, checkout and user cancellation.
type Subscription struct {
	ID                   uint               `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
	UserID               uint               `gorm:"not null;uniqueIndex" json:"userId"`
	Plan                 Plan               `gorm:"type:varchar(20);not null" json:"plan"`
	WompiSubscriptionID  string             `gorm:"type:varchar(100);index" json:"wompiSubscriptionId,omitempty"`
	PaymentLinkID        string             `gorm:"type:varchar(100)" json:"paymentLinkId,omitempty"`
	Status               SubscriptionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Reference            string             `gorm:"type:varchar(120);not null;uniqueIndex" json:"reference"`
	AmountInCents        int64              `json:"amountInCents"`
	Currency             string             `gorm:"type:varchar(10);default:'COP'" json:"currency"`
	PendingTransactionID string             `gorm:"type:varchar(100)" json:"-"`
	LastPaymentDate      *time.Time         `json:"lastPaymentDate,omitempty"`
	NextPaymentDate      *time.Time         `gorm:"index" json:"nextPaymentDate,omitempty"`
	CancelledAt          *time.Time         `json:"cancelledAt,omitempty"`
	LastEventAt          *time.Time         `json:"-"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
