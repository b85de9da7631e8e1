package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/NicoHurtado/cursia-sub002/database/dbtest"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services/wompi"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const eventsSecret = "test-events-secret"

type fakeGateway struct {
	links        []wompi.PaymentLinkRequest
	transactions map[string]*wompi.Transaction
	linkErr      error
}

func (g *fakeGateway) CreatePaymentLink(_ context.Context, req wompi.PaymentLinkRequest) (*wompi.PaymentLink, error) {
	if g.linkErr != nil {
		return nil, g.linkErr
	}
	g.links = append(g.links, req)
	return &wompi.PaymentLink{ID: "link_1", CheckoutURL: "https://checkout.wompi.co/l/link_1"}, nil
}

func (g *fakeGateway) GetTransaction(_ context.Context, id string) (*wompi.Transaction, error) {
	if txn, ok := g.transactions[id]; ok {
		return txn, nil
	}
	return nil, wompi.ErrNotFound
}

func transactionEvent(t *testing.T, id, status, reference string, at time.Time) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": wompi.EventTransactionUpdated,
		"data": map[string]interface{}{
			"transaction": map[string]interface{}{
				"id":              id,
				"status":          status,
				"reference":       reference,
				"amount_in_cents": 4990000,
				"currency":        "COP",
			},
		},
		"timestamp": at.Unix(),
	})
	require.NoError(t, err)
	return body
}

func createSubscription(t *testing.T, db *gorm.DB, user *model.User, plan model.Plan, status model.SubscriptionStatus) *model.Subscription {
	t.Helper()
	sub := &model.Subscription{
		UserID:    user.ID,
		Plan:      plan,
		Status:    status,
		Reference: PaymentReference(user.ID, plan, time.Now()),
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func reload(t *testing.T, db *gorm.DB, user *model.User, sub *model.Subscription) {
	t.Helper()
	require.NoError(t, db.First(user, user.ID).Error)
	require.NoError(t, db.First(sub, sub.ID).Error)
}

func TestWebhookRejectsBadSignatureWithoutWrites(t *testing.T) {
	db := dbtest.New(t)
	r := NewSubscriptionReconciler(db, eventsSecret, logger.Nop())
	user := createUser(t, db, model.PlanFree)
	sub := createSubscription(t, db, user, model.PlanExperto, model.SubscriptionInactive)

	body := transactionEvent(t, "tx_1", wompi.TransactionApproved, sub.Reference, time.Now())
	for _, sig := range []string{"", "deadbeef", wompi.Sign("wrong-secret", body)} {
		_, err := r.HandleWebhook(context.Background(), body, sig)
		require.Error(t, err)
		assert.Equal(t, apperror.KindInvalidSignature, apperror.From(err).Kind)
	}

	var events, payments int64
	db.Model(&model.WebhookEvent{}).Count(&events)
	db.Model(&model.PaymentTransaction{}).Count(&payments)
	assert.Zero(t, events)
	assert.Zero(t, payments)
	reload(t, db, user, sub)
	assert.Equal(t, model.PlanFree, user.Plan)
	assert.Equal(t, model.SubscriptionInactive, sub.Status)
}

func TestWebhookApprovedActivatesPlan(t *testing.T) {
	db := dbtest.New(t)
	r := NewSubscriptionReconciler(db, eventsSecret, logger.Nop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	user := createUser(t, db, model.PlanFree)
	sub := createSubscription(t, db, user, model.PlanExperto, model.SubscriptionInactive)

	body := transactionEvent(t, "tx_1", wompi.TransactionApproved, sub.Reference, now)
	res, err := r.HandleWebhook(context.Background(), body, wompi.Sign(eventsSecret, body))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookOutcomeApplied, res.Outcome)

	reload(t, db, user, sub)
	assert.Equal(t, model.PlanExperto, user.Plan)
	assert.Equal(t, model.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.NextPaymentDate)
	assert.WithinDuration(t, now.Add(BillingPeriod), *sub.NextPaymentDate, time.Second)

	_, err = r.HandleWebhook(context.Background(), body, wompi.Sign(eventsSecret, body))
	require.NoError(t, err)
	var payments, events int64
	db.Model(&model.PaymentTransaction{}).Count(&payments)
	db.Model(&model.WebhookEvent{}).Count(&events)
	assert.Equal(t, int64(1), payments, "redelivery updates the same transaction row")
	assert.Equal(t, int64(2), events)
}

func TestWebhookDeclinedOrPendingDowngrades(t *testing.T) {
	for _, status := range []string{"DECLINED", wompi.TransactionPending} {
		t.Run(status, func(t *testing.T) {
			db := dbtest.New(t)
			r := NewSubscriptionReconciler(db, eventsSecret, logger.Nop())
			user := createUser(t, db, model.PlanExperto)
			sub := createSubscription(t, db, user, model.PlanExperto, model.SubscriptionActive)

			body := transactionEvent(t, "tx_9", status, sub.Reference, time.Now())
			_, err := r.HandleWebhook(context.Background(), body, wompi.Sign(eventsSecret, body))
			require.NoError(t, err)

			reload(t, db, user, sub)
			assert.Equal(t, model.PlanFree, user.Plan)
			assert.Equal(t, model.SubscriptionFailed, sub.Status)
			if status == wompi.TransactionPending {
				assert.Equal(t, "tx_9", sub.PendingTransactionID)
			} else {
				assert.Empty(t, sub.PendingTransactionID)
			}
		})
	}
}

func TestWebhookStaleAndUnknownEvents(t *testing.T) {
	db := dbtest.New(t)
	r := NewSubscriptionReconciler(db, eventsSecret, logger.Nop())
	ctx := context.Background()
	user := createUser(t, db, model.PlanFree)
	sub := createSubscription(t, db, user, model.PlanMaestro, model.SubscriptionInactive)
	later := time.Now()

	approved := transactionEvent(t, "tx_2", wompi.TransactionApproved, sub.Reference, later)
	_, err := r.HandleWebhook(ctx, approved, wompi.Sign(eventsSecret, approved))
	require.NoError(t, err)

	declined := transactionEvent(t, "tx_1", "DECLINED", sub.Reference, later.Add(-time.Hour))
	res, err := r.HandleWebhook(ctx, declined, wompi.Sign(eventsSecret, declined))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookOutcomeStale, res.Outcome)
	reload(t, db, user, sub)
	assert.Equal(t, model.PlanMaestro, user.Plan)

	orphan := transactionEvent(t, "tx_3", wompi.TransactionApproved, "CURSIA-999-MAESTRO-1", later)
	res, err = r.HandleWebhook(ctx, orphan, wompi.Sign(eventsSecret, orphan))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookOutcomeNotFound, res.Outcome)

	unknown := []byte(`{"event":"nequi_token.updated","data":{}}`)
	res, err = r.HandleWebhook(ctx, unknown, wompi.Sign(eventsSecret, unknown))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookOutcomeIgnored, res.Outcome)

	garbage := []byte(`{not json`)
	_, err = r.HandleWebhook(ctx, garbage, wompi.Sign(eventsSecret, garbage))
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestWebhookSubscriptionCancelled(t *testing.T) {
	db := dbtest.New(t)
	r := NewSubscriptionReconciler(db, eventsSecret, logger.Nop())
	user := createUser(t, db, model.PlanAprendiz)
	sub := createSubscription(t, db, user, model.PlanAprendiz, model.SubscriptionActive)

	body, err := json.Marshal(map[string]interface{}{
		"event": wompi.EventSubscriptionCancel,
		"data": map[string]interface{}{
			"subscription": map[string]interface{}{"id": "sub_77", "status": "CANCELLED", "reference": sub.Reference},
		},
		"timestamp": time.Now().Unix(),
	})
	require.NoError(t, err)
	_, err = r.HandleWebhook(context.Background(), body, wompi.Sign(eventsSecret, body))
	require.NoError(t, err)

	reload(t, db, user, sub)
	assert.Equal(t, model.SubscriptionCancelled, sub.Status)
	assert.Equal(t, "sub_77", sub.WompiSubscriptionID)
	assert.Equal(t, model.PlanFree, user.Plan)
}

func TestCheckout(t *testing.T) {
	db := dbtest.New(t)
	gw := &fakeGateway{}
	svc := NewSubscriptionService(db, gw, NewSubscriptionReconciler(db, eventsSecret, logger.Nop()), "https://cursia.test/billing", logger.Nop())
	ctx := context.Background()
	user := createUser(t, db, model.PlanFree)

	_, err := svc.Checkout(ctx, user, model.PlanFree)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	res, err := svc.Checkout(ctx, user, model.PlanExperto)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.wompi.co/l/link_1", res.CheckoutURL)
	assert.Equal(t, model.SubscriptionInactive, res.Subscription.Status)
	require.Len(t, gw.links, 1)
	assert.Equal(t, int64(4990000), gw.links[0].AmountInCents)
	assert.Equal(t, res.Subscription.Reference, gw.links[0].Reference)

	require.NoError(t, db.Model(res.Subscription).Update("status", model.SubscriptionActive).Error)
	_, err = svc.Checkout(ctx, user, model.PlanExperto)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	upgrade, err := svc.Checkout(ctx, user, model.PlanMaestro)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, upgrade.Subscription.Status)
	assert.Equal(t, res.Subscription.ID, upgrade.Subscription.ID)

	gw.linkErr = errors.New("gateway down")
	_, err = svc.Checkout(ctx, createUser(t, db, model.PlanFree), model.PlanAprendiz)
	assert.True(t, apperror.IsKind(err, apperror.KindInternal))
}

func TestCancelKeepsPlanUntilExpiration(t *testing.T) {
	db := dbtest.New(t)
	svc := NewSubscriptionService(db, &fakeGateway{}, nil, "", logger.Nop())
	ctx := context.Background()
	user := createUser(t, db, model.PlanExperto)
	sub := createSubscription(t, db, user, model.PlanExperto, model.SubscriptionActive)
	next := time.Now().Add(10 * 24 * time.Hour)
	require.NoError(t, db.Model(sub).Update("next_payment_date", next).Error)

	_, err := svc.Cancel(ctx, user.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, user.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	reload(t, db, user, sub)
	assert.Equal(t, model.SubscriptionCancelled, sub.Status)
	assert.Equal(t, model.PlanExperto, user.Plan)

	n, err := svc.ExpireSubscriptions(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.ExpireSubscriptions(ctx, next.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	reload(t, db, user, sub)
	assert.Equal(t, model.PlanFree, user.Plan)

	n, err = svc.ExpireSubscriptions(ctx, next.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	view, err := svc.Me(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, view.Plan.Plan)
	assert.Equal(t, model.SubscriptionCancelled, view.Subscription.Status)
}

func TestReconcilePendingAppliesResolvedTransactions(t *testing.T) {
	db := dbtest.New(t)
	r := NewSubscriptionReconciler(db, eventsSecret, logger.Nop())
	gw := &fakeGateway{transactions: map[string]*wompi.Transaction{}}
	svc := NewSubscriptionService(db, gw, r, "", logger.Nop())
	ctx := context.Background()

	user := createUser(t, db, model.PlanFree)
	sub := createSubscription(t, db, user, model.PlanAprendiz, model.SubscriptionInactive)
	sent := time.Now()
	body := transactionEvent(t, "tx_p", wompi.TransactionPending, sub.Reference, sent)
	_, err := r.HandleWebhook(ctx, body, wompi.Sign(eventsSecret, body))
	require.NoError(t, err)

	gw.transactions["tx_p"] = &wompi.Transaction{ID: "tx_p", Status: wompi.TransactionPending, Reference: sub.Reference}
	n, err := svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "too recent to poll")

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "still pending")

	gw.transactions["tx_p"] = &wompi.Transaction{
		ID:            "tx_p",
		Status:        wompi.TransactionApproved,
		Reference:     sub.Reference,
		AmountInCents: 2990000,
		FinalizedAt:   sent.Add(time.Minute),
	}
	n, err = svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reload(t, db, user, sub)
	assert.Equal(t, model.PlanAprendiz, user.Plan)
	assert.Equal(t, model.SubscriptionActive, sub.Status)
	assert.Empty(t, sub.PendingTransactionID)
}
