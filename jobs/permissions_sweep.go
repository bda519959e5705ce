package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voyagedesk/voyagedesk/internal/observability"
	"github.com/voyagedesk/voyagedesk/internal/permissions"
)

// SweepAccounts enumerates profiles that might carry expired grants.
type SweepAccounts interface {
	ListUserIDsWithCustomGrants(ctx context.Context) ([]string, error)
}

// sweepActor is recorded as the performer of audit entries written by the
// scheduled sweep, distinguishing them from admin-initiated mutations.
const sweepActor = "system:expiry-sweep"

// SweepExpiredJob removes expired custom grants from stored profiles. The
// expiry check itself lives in the permissions service; this job only feeds
// it user ids and reports totals.
type SweepExpiredJob struct {
	Service  *permissions.Service
	Accounts SweepAccounts
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// NewSweepExpiredJob initialises the sweep handler.
func NewSweepExpiredJob(service *permissions.Service, accounts SweepAccounts, logger *slog.Logger, metrics *observability.Metrics) *SweepExpiredJob {
	return &SweepExpiredJob{Service: service, Accounts: accounts, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep across all profiles with custom grants.
func (j *SweepExpiredJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Service == nil || j.Accounts == nil {
		return errors.New("sweep expired: handler not configured")
	}
	userIDs, err := j.Accounts.ListUserIDsWithCustomGrants(ctx)
	if err != nil {
		j.Metrics.ObserveJob("sweep_expired", "error")
		return fmt.Errorf("sweep expired: list profiles: %w", err)
	}
	var swept, failed int
	for _, userID := range userIDs {
		_, removed, err := j.Service.CleanupExpired(ctx, userID, sweepActor)
		if err != nil {
			// Version conflicts just mean an admin touched the profile
			// mid-sweep; the next run picks it up again.
			if errors.Is(err, permissions.ErrVersionConflict) {
				continue
			}
			failed++
			j.Logger.Error("sweep profile", slog.String("user_id", userID), slog.Any("error", err))
			continue
		}
		swept += removed
	}
	if failed > 0 {
		j.Metrics.ObserveJob("sweep_expired", "partial")
		return fmt.Errorf("sweep expired: %d profiles failed", failed)
	}
	j.Metrics.ObserveJob("sweep_expired", "ok")
	j.Logger.Info("sweep expired grants", slog.Int("removed", swept), slog.Int("profiles", len(userIDs)))
	return nil
}

// Mailer enqueues notification emails.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// NotifyExpiringJob warns granting admins about temporary grants that lapse
// within the configured window.
type NotifyExpiringJob struct {
	Service  *permissions.Service
	Accounts SweepAccounts
	Mailer   Mailer
	Window   time.Duration
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// NewNotifyExpiringJob initialises the notification handler.
func NewNotifyExpiringJob(service *permissions.Service, accounts SweepAccounts, mailer Mailer, window time.Duration, logger *slog.Logger, metrics *observability.Metrics) *NotifyExpiringJob {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &NotifyExpiringJob{Service: service, Accounts: accounts, Mailer: mailer, Window: window, Logger: logger, Metrics: metrics}
}

// Handle finds grants expiring inside the window and enqueues one email per
// granting admin and subject user.
func (j *NotifyExpiringJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Service == nil || j.Accounts == nil || j.Mailer == nil {
		return errors.New("notify expiring: handler not configured")
	}
	userIDs, err := j.Accounts.ListUserIDsWithCustomGrants(ctx)
	if err != nil {
		j.Metrics.ObserveJob("notify_expiring", "error")
		return fmt.Errorf("notify expiring: list profiles: %w", err)
	}
	now := time.Now()
	var notified int
	for _, userID := range userIDs {
		profile, err := j.Service.GetProfile(ctx, userID)
		if err != nil {
			j.Logger.Error("notify load profile", slog.String("user_id", userID), slog.Any("error", err))
			continue
		}
		for _, grant := range permissions.ExpiringGrants(profile, j.Window, now) {
			payload := SendEmailPayload{
				To:      grant.GrantedBy,
				Subject: fmt.Sprintf("Temporary %s access for %s expires soon", grant.Module, userID),
				Body: fmt.Sprintf("The temporary grant on %s you issued for user %s expires at %s.",
					grant.Module, userID, grant.ExpiresAt.UTC().Format(time.RFC3339)),
			}
			if _, err := j.Mailer.EnqueueSendEmail(ctx, payload); err != nil {
				j.Logger.Error("notify enqueue email", slog.String("user_id", userID), slog.Any("error", err))
				continue
			}
			notified++
		}
	}
	j.Metrics.ObserveJob("notify_expiring", "ok")
	j.Logger.Info("notify expiring grants", slog.Int("notifications", notified))
	return nil
}
