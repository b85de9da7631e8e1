package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services/wompi"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BillingPeriod is the time a payment keeps a subscription active.
const BillingPeriod = 30 * 24 * time.Hour

// WebhookResult reports how an event was handled.
type WebhookResult struct {
	Event     string `json:"event"`
	Reference string `json:"reference,omitempty"`
	Outcome   string `json:"outcome"`
}

// SubscriptionReconciler applies Wompi events to subscriptions and user plans.
type SubscriptionReconciler struct {
	db     *gorm.DB
	secret string
	log    *logger.Logger
	now    func() time.Time
}

func NewSubscriptionReconciler(db *gorm.DB, eventsSecret string, log *logger.Logger) *SubscriptionReconciler {
	return &SubscriptionReconciler{db: db, secret: eventsSecret, log: log, now: time.Now}
}

// HandleWebhook authenticates the raw body and applies the event. Nothing is
// read from or written to the database before the signature verifies.
func (r *SubscriptionReconciler) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if !wompi.VerifySignature(r.secret, body, signature) {
		r.log.Warn("rejected webhook with invalid signature", "bytes", len(body))
		return nil, apperror.InvalidSignature()
	}

	var event wompi.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperror.Validation("invalid webhook payload")
	}

	result := &WebhookResult{Event: event.Event, Reference: event.Reference()}
	occurredAt := event.OccurredAt()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		outcome, err := r.apply(tx, &event, occurredAt)
		if err != nil {
			return err
		}
		result.Outcome = outcome
		return tx.Create(&model.WebhookEvent{
			Provider:       "wompi",
			EventType:      event.Event,
			Reference:      result.Reference,
			EventTimestamp: occurredAt,
			Payload:        datatypes.JSON(body),
			Outcome:        outcome,
		}).Error
	})
	if err != nil {
		return nil, apperror.Internal("failed to process webhook", err)
	}

	r.log.Info("webhook processed", "event", event.Event, "reference", result.Reference, "outcome", result.Outcome)
	return result, nil
}

// ApplyTransaction feeds a transaction fetched from the Wompi API through the
// same rules as a transaction webhook.
func (r *SubscriptionReconciler) ApplyTransaction(ctx context.Context, txn *wompi.Transaction, at time.Time) (string, error) {
	var outcome string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		outcome, err = r.applyTransaction(tx, txn, at)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(txn)
		return tx.Create(&model.WebhookEvent{
			Provider:       "wompi",
			EventType:      "transaction.reconciled",
			Reference:      txn.Reference,
			EventTimestamp: at,
			Payload:        datatypes.JSON(payload),
			Outcome:        outcome,
		}).Error
	})
	return outcome, err
}

func (r *SubscriptionReconciler) apply(tx *gorm.DB, event *wompi.Event, at time.Time) (string, error) {
	switch event.Event {
	case wompi.EventTransactionCreated, wompi.EventTransactionUpdated:
		if event.Data.Transaction == nil {
			return model.WebhookOutcomeIgnored, nil
		}
		return r.applyTransaction(tx, event.Data.Transaction, at)
	case wompi.EventSubscriptionCreated, wompi.EventSubscriptionUpdated:
		if event.Data.Subscription == nil {
			return model.WebhookOutcomeIgnored, nil
		}
		return r.applySubscription(tx, event.Data.Subscription, at)
	case wompi.EventSubscriptionCancel:
		if event.Data.Subscription == nil {
			return model.WebhookOutcomeIgnored, nil
		}
		return r.applyCancellation(tx, event.Data.Subscription, at)
	default:
		r.log.Info("ignoring unknown webhook event", "event", event.Event)
		return model.WebhookOutcomeIgnored, nil
	}
}

func isStale(sub *model.Subscription, at time.Time) bool {
	return sub.LastEventAt != nil && at.Before(*sub.LastEventAt)
}

func (r *SubscriptionReconciler) applyTransaction(tx *gorm.DB, txn *wompi.Transaction, at time.Time) (string, error) {
	var sub model.Subscription
	err := tx.Where("reference = ?", txn.Reference).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.Warn("transaction for unknown subscription", "reference", txn.Reference, "transaction_id", txn.ID)
		return model.WebhookOutcomeNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if isStale(&sub, at) {
		return model.WebhookOutcomeStale, nil
	}

	payment := model.PaymentTransaction{
		SubscriptionID:     sub.ID,
		UserID:             sub.UserID,
		WompiTransactionID: txn.ID,
		Reference:          txn.Reference,
		Status:             txn.Status,
		AmountInCents:      txn.AmountInCents,
		Currency:           txn.Currency,
		PaymentMethod:      txn.PaymentMethodType,
		EventAt:            at,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wompi_transaction_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "amount_in_cents", "payment_method", "event_at", "updated_at"}),
	}).Create(&payment).Error; err != nil {
		return "", err
	}

	now := r.now()
	updates := map[string]interface{}{"last_event_at": at}
	plan := model.PlanFree
	if txn.Status == wompi.TransactionApproved {
		next := now.Add(BillingPeriod)
		updates["status"] = model.SubscriptionActive
		updates["last_payment_date"] = now
		updates["next_payment_date"] = next
		updates["cancelled_at"] = nil
		updates["pending_transaction_id"] = ""
		plan = sub.Plan
	} else {
		updates["status"] = model.SubscriptionFailed
		if txn.Status == wompi.TransactionPending {
			updates["pending_transaction_id"] = txn.ID
		} else {
			updates["pending_transaction_id"] = ""
		}
	}

	if err := tx.Model(&sub).Updates(updates).Error; err != nil {
		return "", err
	}
	if err := tx.Model(&model.User{}).Where("id = ?", sub.UserID).Update("plan", plan).Error; err != nil {
		return "", err
	}
	return model.WebhookOutcomeApplied, nil
}

// findByProvider looks a subscription up by Wompi id, then by reference. A
// reference match adopts the provider id.
func findByProvider(tx *gorm.DB, remote *wompi.Subscription) (*model.Subscription, error) {
	var sub model.Subscription
	err := tx.Where("wompi_subscription_id = ? AND wompi_subscription_id <> ''", remote.ID).First(&sub).Error
	if err == nil {
		return &sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) || remote.Reference == "" {
		return nil, err
	}
	if err := tx.Where("reference = ?", remote.Reference).First(&sub).Error; err != nil {
		return nil, err
	}
	sub.WompiSubscriptionID = remote.ID
	return &sub, nil
}

func (r *SubscriptionReconciler) applySubscription(tx *gorm.DB, remote *wompi.Subscription, at time.Time) (string, error) {
	sub, err := findByProvider(tx, remote)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WebhookOutcomeNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if isStale(sub, at) {
		return model.WebhookOutcomeStale, nil
	}

	status := model.SubscriptionInactive
	if remote.Status == string(model.SubscriptionActive) {
		status = model.SubscriptionActive
	}
	updates := map[string]interface{}{
		"status":                status,
		"wompi_subscription_id": sub.WompiSubscriptionID,
		"last_event_at":         at,
	}
	if remote.NextPaymentDate != nil {
		updates["next_payment_date"] = *remote.NextPaymentDate
	}
	if err := tx.Model(sub).Updates(updates).Error; err != nil {
		return "", err
	}
	return model.WebhookOutcomeApplied, nil
}

func (r *SubscriptionReconciler) applyCancellation(tx *gorm.DB, remote *wompi.Subscription, at time.Time) (string, error) {
	sub, err := findByProvider(tx, remote)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WebhookOutcomeNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if isStale(sub, at) {
		return model.WebhookOutcomeStale, nil
	}

	if err := tx.Model(sub).Updates(map[string]interface{}{
		"status":                model.SubscriptionCancelled,
		"cancelled_at":          r.now(),
		"wompi_subscription_id": sub.WompiSubscriptionID,
		"last_event_at":         at,
	}).Error; err != nil {
		return "", err
	}
	if err := tx.Model(&model.User{}).Where("id = ?", sub.UserID).Update("plan", model.PlanFree).Error; err != nil {
		return "", err
	}
	return model.WebhookOutcomeApplied, nil
}
