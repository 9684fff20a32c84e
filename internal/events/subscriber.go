package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/JBD-GER/maklernull-sub000/internal/models"
)

// HandlerFunc processes one listing event. Errors are logged; the subscription goes on.
type HandlerFunc func(ctx context.Context, event models.ListingEvent) error

// Subscribe listens on ListingEventsChannel until ctx is cancelled.
func Subscribe(ctx context.Context, rdb *redis.Client, handle HandlerFunc) error {
	pubsub := rdb.Subscribe(ctx, ListingEventsChannel)
	defer pubsub.Close()

	// Wait for confirmation that subscription is created before reading messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", ListingEventsChannel, err)
	}
	log.Println("Subscribed to Redis channel for listing events:", ListingEventsChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("Listing event listener stopped.")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			Dispatch(ctx, []byte(msg.Payload), handle)
		}
	}
}

// Dispatch decodes one message and hands it to handle.
func Dispatch(ctx context.Context, payload []byte, handle HandlerFunc) {
	var event models.ListingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("WARN: dropping malformed listing event: %v", err)
		return
	}
	if err := handle(ctx, event); err != nil {
		log.Printf("ERROR: handling %s for listing %s: %v", event.Type, event.ListingID, err)
	}
}

// RefreshReadinessOnChange recomputes the readiness report after content writes.
func RefreshReadinessOnChange(refresh func(ctx context.Context, listingID string) error) HandlerFunc {
	return func(ctx context.Context, event models.ListingEvent) error {
		if event.Type != models.EventListingChanged {
			return nil
		}
		return refresh(ctx, event.ListingID)
	}
}
