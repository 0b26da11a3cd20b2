package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox/idempotency"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox/payloads"
)

type consumerFakeRepo struct {
	created []*models.Notification
	err     error
}

func (f *consumerFakeRepo) Create(_ context.Context, notification *models.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, notification)
	return nil
}

type consumerFakeStore struct {
	setResults []bool
	setIndex   int
	deleted    []string
}

func (f *consumerFakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *consumerFakeStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	result := true
	if f.setIndex < len(f.setResults) {
		result = f.setResults[f.setIndex]
	}
	f.setIndex++
	return result, nil
}

func (f *consumerFakeStore) IdempotencyKey(scope, id string) string {
	return "takas:idempotency:" + scope + ":" + id
}

func (f *consumerFakeStore) Del(_ context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys...)
	return nil
}

func newTestConsumer(t *testing.T, repo *consumerFakeRepo, store *consumerFakeStore) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "notifications-test",
		Output:      io.Discard,
	})
	return &Consumer{
		repo:        repo,
		idempotency: manager,
		logg:        logg,
	}
}

func envelopeMessage(t *testing.T, eventType enums.OutboxEventType, payload any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         "m-1",
		Data:       raw,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestProcessCreatesNotificationForOffer(t *testing.T) {
	repo := &consumerFakeRepo{}
	consumer := newTestConsumer(t, repo, &consumerFakeStore{})
	ownerID := uuid.New()
	swapID := uuid.New()
	msg := envelopeMessage(t, enums.EventSwapOffered, payloads.SwapOfferedEvent{
		SwapID:      swapID,
		OwnerID:     ownerID,
		RequesterID: uuid.New(),
		ProductID:   uuid.New(),
	})

	result := consumer.process(context.Background(), msg)
	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.created))
	}
	created := repo.created[0]
	if created.UserID != ownerID {
		t.Fatalf("notification targeted wrong user: %s", created.UserID)
	}
	if created.SwapID == nil || *created.SwapID != swapID {
		t.Fatalf("notification missing swap reference")
	}
	if created.Type != enums.NotificationTypeSwapUpdate {
		t.Fatalf("unexpected notification type: %s", created.Type)
	}
}

func TestProcessFansOutToBothParties(t *testing.T) {
	repo := &consumerFakeRepo{}
	consumer := newTestConsumer(t, repo, &consumerFakeStore{})
	ownerID := uuid.New()
	requesterID := uuid.New()
	msg := envelopeMessage(t, enums.EventSwapCompleted, payloads.SwapCompletedEvent{
		SwapID:      uuid.New(),
		OwnerID:     ownerID,
		RequesterID: requesterID,
		GrossValor:  decimal.NewFromInt(100),
		Fee:         decimal.NewFromInt(5),
		NetValor:    decimal.NewFromInt(95),
		CompletedAt: time.Now(),
	})

	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(repo.created) != 2 {
		t.Fatalf("expected two notifications, got %d", len(repo.created))
	}
	if repo.created[0].UserID != ownerID || repo.created[1].UserID != requesterID {
		t.Fatalf("settlement notifications targeted wrong users")
	}
	if repo.created[0].Type != enums.NotificationTypeSettlement {
		t.Fatalf("unexpected notification type: %s", repo.created[0].Type)
	}
}

func TestProcessAcksDuplicateWithoutWriting(t *testing.T) {
	repo := &consumerFakeRepo{}
	store := &consumerFakeStore{setResults: []bool{false}}
	consumer := newTestConsumer(t, repo, store)
	msg := envelopeMessage(t, enums.EventSwapOffered, payloads.SwapOfferedEvent{
		SwapID:  uuid.New(),
		OwnerID: uuid.New(),
	})

	result := consumer.process(context.Background(), msg)
	if !result.ack || result.nack {
		t.Fatalf("expected duplicate to ack, got %+v", result)
	}
	if len(repo.created) != 0 {
		t.Fatalf("duplicate event must not create notifications")
	}
}

func TestProcessNacksAndReleasesMarkOnWriteFailure(t *testing.T) {
	repo := &consumerFakeRepo{err: errors.New("insert failed")}
	store := &consumerFakeStore{}
	consumer := newTestConsumer(t, repo, store)
	msg := envelopeMessage(t, enums.EventSwapOffered, payloads.SwapOfferedEvent{
		SwapID:  uuid.New(),
		OwnerID: uuid.New(),
	})

	result := consumer.process(context.Background(), msg)
	if !result.nack {
		t.Fatalf("expected nack on write failure, got %+v", result)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("expected processed mark released for retry, got %d deletes", len(store.deleted))
	}
}

func TestProcessAcksUnhandledEventType(t *testing.T) {
	repo := &consumerFakeRepo{}
	consumer := newTestConsumer(t, repo, &consumerFakeStore{})
	msg := envelopeMessage(t, enums.EventActivityRecorded, map[string]any{})

	result := consumer.process(context.Background(), msg)
	if !result.ack || result.nack {
		t.Fatalf("expected unhandled event to ack, got %+v", result)
	}
	if len(repo.created) != 0 {
		t.Fatalf("unhandled event must not create notifications")
	}
}

func TestProcessAcksGarbagePayload(t *testing.T) {
	repo := &consumerFakeRepo{}
	consumer := newTestConsumer(t, repo, &consumerFakeStore{})
	msg := &pubsub.Message{
		ID:         "m-bad",
		Data:       []byte("{not json"),
		Attributes: map[string]string{"event_type": string(enums.EventSwapOffered)},
	}

	result := consumer.process(context.Background(), msg)
	if !result.ack || result.nack {
		t.Fatalf("expected malformed envelope to ack, got %+v", result)
	}
	if len(repo.created) != 0 {
		t.Fatalf("malformed envelope must not create notifications")
	}
}
