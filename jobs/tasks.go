package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/campusmarket/campusmarket/internal/marketplace"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeItemSold notifies a seller that one of their items was bought.
	TaskTypeItemSold = "marketplace:item_sold"
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
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// NewItemSoldTask wraps a sale event.
func NewItemSoldTask(event marketplace.ItemSoldEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeItemSold, data, asynq.MaxRetry(5)), nil
}
