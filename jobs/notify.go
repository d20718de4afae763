package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campusmarket/campusmarket/internal/auth"
	jobmetrics "github.com/campusmarket/campusmarket/internal/jobs"
	"github.com/campusmarket/campusmarket/internal/marketplace"
	"github.com/campusmarket/campusmarket/internal/shared"
	"github.com/campusmarket/campusmarket/internal/view"
)

// UserLookup resolves account details for notifications.
type UserLookup interface {
	Lookup(ctx context.Context, id int64) (*auth.User, error)
}

// EmailQueue schedules delivery of a composed email.
type EmailQueue interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// Notifier turns marketplace events into emails. Composing and delivering run
// as separate tasks so an SMTP outage retries only the delivery.
type Notifier struct {
	users   UserLookup
	mailer  Mailer
	queue   EmailQueue
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewNotifier constructs a Notifier. metrics may be nil.
func NewNotifier(users UserLookup, mailer Mailer, queue EmailQueue, metrics *jobmetrics.Metrics, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{users: users, mailer: mailer, queue: queue, metrics: metrics, logger: logger}
}

// Handlers lists the task handlers served by the notifier.
func (n *Notifier) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskTypeItemSold, Handler: n.HandleItemSold},
		{Type: TaskTypeSendEmail, Handler: n.HandleSendEmail},
	}
}

// HandleItemSold composes the seller email and queues it for delivery.
func (n *Notifier) HandleItemSold(ctx context.Context, t *asynq.Task) error {
	tracker := n.metrics.Track(TaskTypeItemSold)
	var event marketplace.ItemSoldEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return tracker.End(fmt.Errorf("decode item sold payload: %v: %w", err, asynq.SkipRetry))
	}
	seller, err := n.users.Lookup(ctx, event.SellerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			n.logger.Warn("seller vanished before notification", slog.Int64("seller_id", event.SellerID))
			return tracker.End(fmt.Errorf("seller %d: %w", event.SellerID, asynq.SkipRetry))
		}
		return tracker.End(fmt.Errorf("lookup seller %d: %w", event.SellerID, err))
	}
	buyerName := "another student"
	if buyer, err := n.users.Lookup(ctx, event.BuyerID); err == nil {
		buyerName = buyer.Username
	}

	msg := ItemSoldEmail(seller.Username, seller.Email, buyerName, event)
	if _, err := n.queue.EnqueueSendEmail(ctx, msg); err != nil {
		return tracker.End(fmt.Errorf("enqueue seller email: %w", err))
	}
	n.logger.Info("seller email queued", slog.Int64("item_id", event.ItemID), slog.Int64("seller_id", event.SellerID))
	return tracker.End(nil)
}

// HandleSendEmail delivers a queued email. Relay failures are retried.
func (n *Notifier) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	tracker := n.metrics.Track(TaskTypeSendEmail)
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("decode email payload: %v: %w", err, asynq.SkipRetry))
	}
	if payload.To == "" {
		return tracker.End(fmt.Errorf("email without recipient: %w", asynq.SkipRetry))
	}
	if err := n.mailer.Send(ctx, payload); err != nil {
		return tracker.End(err)
	}
	n.metrics.EmailSent()
	return tracker.End(nil)
}

// ItemSoldEmail renders the seller notification.
func ItemSoldEmail(sellerName, sellerEmail, buyerName string, event marketplace.ItemSoldEvent) SendEmailPayload {
	body := fmt.Sprintf("Hi %s,\n\nGood news! %s bought your item %q for %s on %s.\n\nYou can review your listings on your dashboard.\n\nCampus Marketplace",
		sellerName, buyerName, event.Title, view.FormatPrice(event.Price), event.SoldAt.UTC().Format("Jan 2, 2006 15:04 MST"))
	return SendEmailPayload{
		To:      sellerEmail,
		Subject: "Your item \"" + event.Title + "\" was sold",
		Body:    body,
	}
}
