// Package jobs defines the background tasks for the permission service:
// expired-grant sweeps, expiring-grant notifications and transactional mail.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSweepExpired drops expired custom grants from stored profiles.
	TaskTypeSweepExpired = "perm:sweep_expired"
	// TaskTypeNotifyExpiring warns granting admins about grants nearing expiry.
	TaskTypeNotifyExpiring = "perm:notify_expiring"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: SMTP delivery is wired per environment; development
	// setups run against Mailpit and only need the log line.
	fmt.Printf("[jobs] send email to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}

// NewSweepExpiredTask constructs the sweep task with an empty payload; the
// handler scans every profile carrying custom grants.
func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweepExpired, nil)
}

// NewNotifyExpiringTask constructs the notification task.
func NewNotifyExpiringTask() *asynq.Task {
	return asynq.NewTask(TaskTypeNotifyExpiring, nil)
}
