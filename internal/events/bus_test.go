package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/events"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/tasks"
)

type fakePublisher struct {
	channel  string
	messages [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.messages = append(p.messages, message.([]byte))
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	}
	return cmd
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestBus_ListingChangedPublishes(t *testing.T) {
	pub := &fakePublisher{}
	bus := events.NewBus(&config.Config{}, pub, &fakeEnqueuer{})

	event := models.ListingEvent{
		Type:      models.EventListingChanged,
		ListingID: "l-1",
		OwnerID:   "owner-1",
		Status:    models.StatusDraft,
		At:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, bus.ListingChanged(context.Background(), event))
	assert.Equal(t, events.ListingEventsChannel, pub.channel)

	var decoded models.ListingEvent
	require.Len(t, pub.messages, 1)
	require.NoError(t, json.Unmarshal(pub.messages[0], &decoded))
	assert.Equal(t, event, decoded)

	pub.err = errors.New("connection refused")
	assert.Error(t, bus.ListingChanged(context.Background(), event))
}

func TestBus_QueuesOnlyConfiguredTasks(t *testing.T) {
	ctx := context.Background()
	listing := &models.Listing{ID: "l-1", Status: models.StatusActive}
	session := &models.CheckoutSession{ID: "s-1"}

	idle := &fakeEnqueuer{}
	bus := events.NewBus(&config.Config{}, &fakePublisher{}, idle)
	require.NoError(t, bus.ListingActivated(ctx, listing))
	require.NoError(t, bus.SessionConsumed(ctx, session))
	assert.Empty(t, idle.tasks)

	busy := &fakeEnqueuer{}
	bus = events.NewBus(&config.Config{BridgeURL: "http://bridge", AwsS3Bucket: "archive"}, &fakePublisher{}, busy)
	require.NoError(t, bus.ListingActivated(ctx, listing))
	require.NoError(t, bus.SessionConsumed(ctx, session))
	require.Len(t, busy.tasks, 2)
	assert.Equal(t, tasks.TypeBridgeNotify, busy.tasks[0].Type())
	assert.Equal(t, tasks.TypeSessionArchive, busy.tasks[1].Type())
}

func TestBus_OwnerNotice(t *testing.T) {
	ctx := context.Background()
	notice := models.OwnerNotice{Kind: models.NoticeRenewal, ListingID: "l-1", Email: "erika@example.de"}

	off := &fakeEnqueuer{}
	require.NoError(t, events.NewBus(&config.Config{}, &fakePublisher{}, off).OwnerNotice(ctx, notice))
	assert.Empty(t, off.tasks)

	on := &fakeEnqueuer{}
	bus := events.NewBus(&config.Config{NotifyOwners: true}, &fakePublisher{}, on)
	require.NoError(t, bus.OwnerNotice(ctx, models.OwnerNotice{Kind: models.NoticeExpired, ListingID: "l-2"}))
	require.NoError(t, bus.OwnerNotice(ctx, notice))
	require.Len(t, on.tasks, 1)
	assert.Equal(t, tasks.TypeOwnerNotice, on.tasks[0].Type())

	var decoded models.OwnerNotice
	require.NoError(t, json.Unmarshal(on.tasks[0].Payload(), &decoded))
	assert.Equal(t, notice, decoded)
}

func TestDispatch(t *testing.T) {
	var refreshed []string
	handler := events.RefreshReadinessOnChange(func(ctx context.Context, listingID string) error {
		refreshed = append(refreshed, listingID)
		return nil
	})

	changed, _ := json.Marshal(models.ListingEvent{Type: models.EventListingChanged, ListingID: "l-1"})
	status, _ := json.Marshal(models.ListingEvent{Type: models.EventListingStatusChanged, ListingID: "l-2"})

	events.Dispatch(context.Background(), changed, handler)
	events.Dispatch(context.Background(), status, handler)
	events.Dispatch(context.Background(), []byte("garbage"), handler)

	assert.Equal(t, []string{"l-1"}, refreshed)
}
