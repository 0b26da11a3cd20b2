package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox/idempotency"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox/payloads"
)

const swapNotificationConsumer = "swap-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches swap domain events and fans them out as in-app
// notifications for the affected parties.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a swap notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, swapNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notifications, err := c.build(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, swapNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	if len(notifications) == 0 {
		c.logg.Info(logCtx, "event type not handled")
		return processResult{ack: true}
	}

	for _, notification := range notifications {
		if err := c.repo.Create(ctx, notification); err != nil {
			c.logg.Error(logCtx, "notification write failed", err)
			_ = c.idempotency.Delete(ctx, swapNotificationConsumer, eventID)
			return processResult{nack: true}
		}
	}
	c.logg.Info(logCtx, "notifications created")
	return processResult{ack: true}
}

// build maps a domain event to the notification rows it produces. Unhandled
// event types return an empty slice and are acked without side effects.
func (c *Consumer) build(eventType enums.OutboxEventType, data json.RawMessage) ([]*models.Notification, error) {
	switch eventType {
	case enums.EventSwapOffered:
		var p payloads.SwapOfferedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{notify(p.OwnerID, p.SwapID, enums.NotificationTypeSwapUpdate,
			"New swap offer", "You received a new offer on your listing.")}, nil

	case enums.EventSwapAccepted:
		var p payloads.SwapAcceptedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{notify(p.RequesterID, p.SwapID, enums.NotificationTypeSwapUpdate,
			"Offer accepted", fmt.Sprintf("Your offer was accepted. A deposit of %s valor was locked.", p.DepositValor))}, nil

	case enums.EventSwapDeliverySetup:
		var p payloads.SwapDeliverySetupEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		message := fmt.Sprintf("Delivery was arranged via %s.", p.DeliveryMethod)
		if p.DeliveryCode != "" {
			message = fmt.Sprintf("Delivery was arranged via %s. Your delivery code is %s.", p.DeliveryMethod, p.DeliveryCode)
		}
		return []*models.Notification{notify(p.RequesterID, p.SwapID, enums.NotificationTypeDeliveryCode,
			"Delivery arranged", message)}, nil

	case enums.EventSwapDelivered:
		var p payloads.SwapDeliveredEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		message := fmt.Sprintf("The item was handed over. You can raise an issue until %s.",
			p.DisputeWindowEndsAt.Format("Jan 2 15:04"))
		return []*models.Notification{
			notify(p.OwnerID, p.SwapID, enums.NotificationTypeSwapUpdate, "Item delivered", message),
			notify(p.RequesterID, p.SwapID, enums.NotificationTypeSwapUpdate, "Item delivered", message),
		}, nil

	case enums.EventSwapCompleted:
		var p payloads.SwapCompletedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{
			notify(p.OwnerID, p.SwapID, enums.NotificationTypeSettlement,
				"Swap completed", fmt.Sprintf("The swap settled. %s valor was credited after a %s fee.", p.NetValor, p.Fee)),
			notify(p.RequesterID, p.SwapID, enums.NotificationTypeSettlement,
				"Swap completed", "The swap settled and your deposit was returned."),
		}, nil

	case enums.EventSwapCancelled, enums.EventSwapAutoCancelled:
		var p payloads.SwapCancelledEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		message := fmt.Sprintf("The swap was cancelled (%s). All held valor was returned.", p.Reason)
		return []*models.Notification{
			notify(p.OwnerID, p.SwapID, enums.NotificationTypeSwapUpdate, "Swap cancelled", message),
			notify(p.RequesterID, p.SwapID, enums.NotificationTypeSwapUpdate, "Swap cancelled", message),
		}, nil

	case enums.EventSwapExpiryReminder:
		var p payloads.SwapExpiryReminderEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		notifications := make([]*models.Notification, 0, len(p.TargetUserIDs))
		for _, userID := range p.TargetUserIDs {
			notifications = append(notifications, notify(userID, p.SwapID, enums.NotificationTypeDeadlineReminder,
				"Swap about to expire",
				fmt.Sprintf("A swap waiting on you will be cancelled automatically at %s.", p.ExpiresAt.Format("Jan 2 15:04"))))
		}
		return notifications, nil

	case enums.EventMutualCancelRequest:
		var p payloads.MutualCancelRequestedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{notify(p.CounterpartyID, p.SwapID, enums.NotificationTypeSwapUpdate,
			"Cancellation requested", "The other party asked to cancel the swap by mutual agreement.")}, nil

	case enums.EventDisputeOpened:
		var p payloads.DisputeOpenedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{notify(p.ReportedUserID, p.SwapID, enums.NotificationTypeDisputeUpdate,
			"Dispute opened",
			fmt.Sprintf("A dispute was opened against you. Submit your evidence before %s.",
				p.EvidenceDeadline.Format("Jan 2 15:04")))}, nil

	case enums.EventDisputeResolved:
		var p payloads.DisputeResolvedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		reporterMsg := "Your dispute was reviewed and rejected. The swap continues as delivered."
		reportedMsg := "The dispute against you was rejected."
		if p.Outcome == "upheld" {
			reporterMsg = "Your dispute was upheld. Held valor was returned to you."
			reportedMsg = "The dispute against you was upheld."
		}
		return []*models.Notification{
			notify(p.ReporterID, p.SwapID, enums.NotificationTypeDisputeUpdate, "Dispute resolved", reporterMsg),
			notify(p.ReportedUserID, p.SwapID, enums.NotificationTypeDisputeUpdate, "Dispute resolved", reportedMsg),
		}, nil
	}
	return nil, nil
}

func notify(userID, swapID uuid.UUID, kind enums.NotificationType, title, message string) *models.Notification {
	return &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		SwapID:  &swapID,
	}
}
