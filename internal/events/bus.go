// Package events carries listing notifications out of the core: change events go to a
// Redis pub/sub channel, work that must survive a restart goes to the asynq queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/tasks"
)

// ListingEventsChannel is the pub/sub channel for models.ListingEvent messages.
const ListingEventsChannel = "listing_events"

// Publisher is the part of *redis.Client the bus needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Enqueuer is the part of *asynq.Client the bus needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Bus implements services.IEventBus.
type Bus struct {
	publisher Publisher
	enqueuer  Enqueuer
	bridge    bool
	archive   bool
	notices   bool
}

// NewBus wires the bus. Bridge and archive tasks are only queued when their targets are
// configured, owner notices only when NOTIFY_OWNERS is on.
func NewBus(cfg *config.Config, publisher Publisher, enqueuer Enqueuer) *Bus {
	return &Bus{
		publisher: publisher,
		enqueuer:  enqueuer,
		bridge:    cfg.BridgeURL != "",
		archive:   cfg.AwsS3Bucket != "" || cfg.MockServices,
		notices:   cfg.NotifyOwners,
	}
}

func (b *Bus) ListingChanged(ctx context.Context, event models.ListingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode listing event: %w", err)
	}
	if err := b.publisher.Publish(ctx, ListingEventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s for listing %s: %w", event.Type, event.ListingID, err)
	}
	return nil
}

func (b *Bus) ListingActivated(ctx context.Context, listing *models.Listing) error {
	if !b.bridge {
		return nil
	}
	task, err := tasks.NewBridgeNotifyTask(listing)
	if err != nil {
		return err
	}
	info, err := b.enqueuer.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue bridge notification for listing %s: %w", listing.ID, err)
	}
	log.Printf("Enqueued bridge notification %s for listing %s", info.ID, listing.ID)
	return nil
}

func (b *Bus) SessionConsumed(ctx context.Context, session *models.CheckoutSession) error {
	if !b.archive {
		return nil
	}
	task, err := tasks.NewSessionArchiveTask(session.ID)
	if err != nil {
		return err
	}
	if _, err := b.enqueuer.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue archive of session %s: %w", session.ID, err)
	}
	return nil
}

func (b *Bus) OwnerNotice(ctx context.Context, notice models.OwnerNotice) error {
	if !b.notices || notice.Email == "" {
		return nil
	}
	task, err := tasks.NewOwnerNoticeTask(notice)
	if err != nil {
		return err
	}
	if _, err := b.enqueuer.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s notice for listing %s: %w", notice.Kind, notice.ListingID, err)
	}
	return nil
}
