package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services/wompi"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"gorm.io/gorm"
)

// PendingRecheckAfter is how long a pending transaction may wait for its
// webhook before it is polled.
const PendingRecheckAfter = 10 * time.Minute

// PaymentGateway is the part of the Wompi API checkout and reconciliation use.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req wompi.PaymentLinkRequest) (*wompi.PaymentLink, error)
	GetTransaction(ctx context.Context, id string) (*wompi.Transaction, error)
}

// CheckoutResult is what the client needs to pay for a plan.
type CheckoutResult struct {
	Subscription *model.Subscription `json:"subscription"`
	CheckoutURL  string              `json:"checkoutUrl"`
}

// SubscriptionView is the caller's plan and subscription, if any.
type SubscriptionView struct {
	Plan             PlanInfo            `json:"plan"`
	Subscription     *model.Subscription `json:"subscription"`
	CoursesThisMonth int64               `json:"coursesThisMonth"`
}

// SubscriptionService handles checkout, cancellation, expiration and the
// polling of pending payments.
type SubscriptionService struct {
	db          *gorm.DB
	gateway     PaymentGateway
	reconciler  *SubscriptionReconciler
	redirectURL string
	log         *logger.Logger
	now         func() time.Time
}

func NewSubscriptionService(db *gorm.DB, gateway PaymentGateway, reconciler *SubscriptionReconciler, redirectURL string, log *logger.Logger) *SubscriptionService {
	return &SubscriptionService{
		db:          db,
		gateway:     gateway,
		reconciler:  reconciler,
		redirectURL: redirectURL,
		log:         log,
		now:         time.Now,
	}
}

// PaymentReference builds the merchant reference CURSIA-<userId>-<PLAN>-<unix>.
func PaymentReference(userID uint, plan model.Plan, at time.Time) string {
	return fmt.Sprintf("CURSIA-%d-%s-%d", userID, plan, at.Unix())
}

func (s *SubscriptionService) find(ctx context.Context, userID uint) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Internal("failed to load subscription", err)
	}
	return &sub, nil
}

// Checkout creates a payment link for plan and points the caller's
// subscription at its reference.
func (s *SubscriptionService) Checkout(ctx context.Context, user *model.User, plan model.Plan) (*CheckoutResult, error) {
	if !plan.Paid() {
		return nil, apperror.Validation("plan must be one of APRENDIZ, EXPERTO or MAESTRO")
	}
	sub, err := s.find(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.Status == model.SubscriptionActive && sub.Plan == plan {
		return nil, apperror.Conflict("subscription already active for this plan")
	}

	info := PlanDetails(plan)
	now := s.now()
	reference := PaymentReference(user.ID, plan, now)
	link, err := s.gateway.CreatePaymentLink(ctx, wompi.PaymentLinkRequest{
		Name:          "Cursia " + string(plan),
		Description:   fmt.Sprintf("Plan %s de Cursia por 30 días", plan),
		SingleUse:     true,
		Currency:      info.Currency,
		AmountInCents: info.AmountInCents,
		Reference:     reference,
		RedirectURL:   s.redirectURL,
	})
	if err != nil {
		return nil, apperror.Internal("failed to create payment link", err)
	}

	if sub == nil {
		sub = &model.Subscription{UserID: user.ID, Status: model.SubscriptionInactive}
	}
	sub.Plan = plan
	sub.Reference = reference
	sub.PaymentLinkID = link.ID
	sub.AmountInCents = info.AmountInCents
	sub.Currency = info.Currency
	if sub.Status != model.SubscriptionActive {
		sub.Status = model.SubscriptionInactive
	}
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, apperror.Internal("failed to save subscription", err)
	}

	s.log.Info("checkout created", "user_id", user.ID, "plan", plan, "reference", reference)
	return &CheckoutResult{Subscription: sub, CheckoutURL: link.CheckoutURL}, nil
}

// Me returns the caller's plan, subscription and monthly usage.
func (s *SubscriptionService) Me(ctx context.Context, user *model.User) (*SubscriptionView, error) {
	sub, err := s.find(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	used, err := countCoursesSince(ctx, s.db, user.ID, startOfMonth(s.now()))
	if err != nil {
		return nil, apperror.Internal("failed to count courses", err)
	}
	return &SubscriptionView{Plan: PlanDetails(user.Plan), Subscription: sub, CoursesThisMonth: used}, nil
}

// Cancel marks the caller's active subscription cancelled. The plan is kept
// until the expiration sweep runs after the paid period.
func (s *SubscriptionService) Cancel(ctx context.Context, userID uint) (*model.Subscription, error) {
	sub, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status != model.SubscriptionActive {
		return nil, apperror.Validation("no active subscription to cancel")
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(sub).Updates(map[string]interface{}{
		"status":       model.SubscriptionCancelled,
		"cancelled_at": now,
	}).Error; err != nil {
		return nil, apperror.Internal("failed to cancel subscription", err)
	}
	sub.Status = model.SubscriptionCancelled
	sub.CancelledAt = &now
	return sub, nil
}

// ExpireSubscriptions downgrades to FREE the owners of cancelled
// subscriptions whose paid period ended before now. It returns the number of
// users downgraded and is safe to rerun.
func (s *SubscriptionService) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	var downgraded int64
	err := database.WithRetry(ctx, func() error {
		expired := s.db.Model(&model.Subscription{}).
			Select("user_id").
			Where("status = ? AND next_payment_date < ?", model.SubscriptionCancelled, now)
		res := s.db.WithContext(ctx).Model(&model.User{}).
			Where("id IN (?) AND plan <> ?", expired, model.PlanFree).
			Update("plan", model.PlanFree)
		downgraded = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	if downgraded > 0 {
		s.log.Info("expired subscriptions downgraded", "users", downgraded)
	}
	return downgraded, nil
}

// ReconcilePending polls Wompi for transactions left pending longer than
// PendingRecheckAfter and applies the ones that resolved. It returns the
// number applied.
func (s *SubscriptionService) ReconcilePending(ctx context.Context) (int, error) {
	var subs []model.Subscription
	err := s.db.WithContext(ctx).
		Where("pending_transaction_id <> '' AND status IN ? AND updated_at < ?",
			[]model.SubscriptionStatus{model.SubscriptionInactive, model.SubscriptionFailed},
			s.now().Add(-PendingRecheckAfter)).
		Find(&subs).Error
	if err != nil {
		return 0, fmt.Errorf("load pending subscriptions: %w", err)
	}

	applied := 0
	for _, sub := range subs {
		txn, err := s.gateway.GetTransaction(ctx, sub.PendingTransactionID)
		if err != nil {
			s.log.Warn("failed to poll pending transaction", "subscription_id", sub.ID, "transaction_id", sub.PendingTransactionID, "error", err)
			continue
		}
		if txn.Status == wompi.TransactionPending {
			continue
		}
		at := txn.FinalizedAt
		if at.IsZero() {
			at = s.now()
		}
		outcome, err := s.reconciler.ApplyTransaction(ctx, txn, at)
		if err != nil {
			return applied, fmt.Errorf("apply transaction %s: %w", txn.ID, err)
		}
		if outcome == model.WebhookOutcomeApplied {
			applied++
		}
	}
	return applied, nil
}
