package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/utils/auth"
	"gorm.io/gorm"
)

const (
	cronLogRetention    = 30 * 24 * time.Hour
	webhookLogRetention = 90 * 24 * time.Hour
	auditLogRetention   = 365 * 24 * time.Hour
)

const (
	expireSubscriptions = "expire_subscriptions"
	reconcilePayments   = "reconcile_pending_payments"
	cleanupBlacklist    = "cleanup_token_blacklist"
	cleanupOldData      = "cleanup_old_data"
)

// ExpireSubscriptionsJob downgrades expired cancelled subscriptions daily at 03:00.
func ExpireSubscriptionsJob(subs *services.SubscriptionService) Job {
	return Job{
		Name:     expireSubscriptions,
		Schedule: "0 0 3 * * *",
		Run: func(ctx context.Context) (string, error) {
			n, err := subs.ExpireSubscriptions(ctx, time.Now())
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("downgraded %d users", n), nil
		},
	}
}

// ReconcilePendingPaymentsJob polls Wompi for stuck transactions every 5 minutes.
func ReconcilePendingPaymentsJob(subs *services.SubscriptionService) Job {
	return Job{
		Name:     reconcilePayments,
		Schedule: "0 */5 * * * *",
		Timeout:  2 * time.Minute,
		Run: func(ctx context.Context) (string, error) {
			n, err := subs.ReconcilePending(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("applied %d transactions", n), nil
		},
	}
}

// CleanupBlacklistJob drops expired revoked tokens every hour.
func CleanupBlacklistJob(blacklist *auth.BlacklistService) Job {
	return Job{
		Name:     cleanupBlacklist,
		Schedule: "0 0 * * * *",
		Run: func(ctx context.Context) (string, error) {
			n, err := blacklist.CleanupExpiredTokens(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("removed %d tokens", n), nil
		},
	}
}

// CleanupOldDataJob prunes old cron, webhook and audit logs daily at 02:00.
func CleanupOldDataJob(db *gorm.DB) Job {
	return Job{
		Name:     cleanupOldData,
		Schedule: "0 0 2 * * *",
		Run: func(ctx context.Context) (string, error) {
			now := time.Now()
			targets := []struct {
				table  interface{}
				column string
				keep   time.Duration
			}{
				{&model.CronJobLog{}, "started_at", cronLogRetention},
				{&model.WebhookEvent{}, "created_at", webhookLogRetention},
				{&model.AdminAuditLog{}, "created_at", auditLogRetention},
			}
			var removed int64
			for _, t := range targets {
				res := db.WithContext(ctx).Where(t.column+" < ?", now.Add(-t.keep)).Delete(t.table)
				if res.Error != nil {
					return "", res.Error
				}
				removed += res.RowsAffected
			}
			return fmt.Sprintf("removed %d rows", removed), nil
		},
	}
}

// StandardJobs is the schedule the server runs.
func StandardJobs(db *gorm.DB, subs *services.SubscriptionService, blacklist *auth.BlacklistService) []Job {
	return []Job{
		ExpireSubscriptionsJob(subs),
		ReconcilePendingPaymentsJob(subs),
		CleanupBlacklistJob(blacklist),
		CleanupOldDataJob(db),
	}
}
