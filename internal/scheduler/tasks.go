// Package scheduler provides the asynq-backed background machinery:
// notification outbox dispatch and stale payment expiry.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationOutboxDue = "notification.outbox.due"

const TaskPaymentsExpireStale = "payments.expire_stale"

type NotificationOutboxDuePayload struct {
	OutboxID  string `json:"outboxId"`
	RequestID string `json:"requestId"`
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}

func NewPaymentsExpireStaleTask() *asynq.Task {
	return asynq.NewTask(TaskPaymentsExpireStale, nil)
}
