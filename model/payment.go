package model

import (
	"time"
)

// PaymentTransaction records every Wompi transaction seen for a subscription
type PaymentTransaction struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	SubscriptionID     uint      `gorm:"not null;index" json:"subscriptionId"`
	UserID             uint      `gorm:"not null;index" json:"userId"`
	WompiTransactionID string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"wompiTransactionId"`
	Reference          string    `gorm:"type:varchar(120);index" json:"reference"`
	Status             string    `gorm:"type:varchar(20)" json:"status"` // APPROVED, DECLINED, VOIDED, ERROR, PENDING
	AmountInCents      int64     `json:"amountInCents"`
	Currency           string    `gorm:"type:varchar(10)" json:"currency"`
	PaymentMethod      string    `gorm:"type:varchar(50)" json:"paymentMethod"`
	EventAt            time.Time `json:"eventAt"`

	Subscription Subscription `gorm:"foreignKey:SubscriptionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for PaymentTransaction
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
