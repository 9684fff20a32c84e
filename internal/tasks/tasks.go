package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/email"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/services"
	"github.com/JBD-GER/maklernull-sub000/internal/storage"
	"github.com/JBD-GER/maklernull-sub000/internal/store"
)

// TaskType defines the type of a background task.
const (
	TypeExpirySweep    = "listing:expiry:sweep"
	TypeBridgeNotify   = "listing:bridge:notify"
	TypeSessionArchive = "checkout:session:archive"
	TypeOwnerNotice    = "listing:owner:notice"
)

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// BridgeNotifyPayload tells the syndication bridge that a listing went online.
type BridgeNotifyPayload struct {
	ListingID       string    `json:"listing_id"`
	OwnerID         string    `json:"owner_id"`
	TransactionType string    `json:"transaction_type"`
	PackageCode     string    `json:"package_code"`
	Tier            string    `json:"tier"`
	PeriodEnd       time.Time `json:"period_end"`
	ActivatedAt     time.Time `json:"activated_at"`
}

func NewBridgeNotifyTask(listing *models.Listing) (*asynq.Task, error) {
	payload := BridgeNotifyPayload{
		ListingID:       listing.ID,
		OwnerID:         listing.OwnerID,
		TransactionType: listing.Basis.TransactionType,
		ActivatedAt:     listing.StatusChangedAt,
	}
	if sel := listing.PackageSelection; sel != nil {
		payload.PackageCode = sel.Code
		payload.Tier = sel.Tier
		payload.PeriodEnd = sel.PeriodEnd
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bridge payload for listing %s: %w", listing.ID, err)
	}
	return asynq.NewTask(TypeBridgeNotify, data, asynq.MaxRetry(10), asynq.Timeout(time.Minute)), nil
}

// SessionArchivePayload names the consumed checkout session to archive.
type SessionArchivePayload struct {
	SessionID string `json:"session_id"`
}

func NewSessionArchiveTask(sessionID string) (*asynq.Task, error) {
	data, err := json.Marshal(SessionArchivePayload{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive payload for session %s: %w", sessionID, err)
	}
	return asynq.NewTask(TypeSessionArchive, data, asynq.Queue("low")), nil
}

func NewOwnerNoticeTask(notice models.OwnerNotice) (*asynq.Task, error) {
	data, err := json.Marshal(notice)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s notice for listing %s: %w", notice.Kind, notice.ListingID, err)
	}
	return asynq.NewTask(TypeOwnerNotice, data, asynq.MaxRetry(5)), nil
}

// NewExpirySweepTask returns the sweep task. uniqueFor keeps a second copy out of the
// queue while one is pending.
func NewExpirySweepTask(uniqueFor time.Duration) *asynq.Task {
	return asynq.NewTask(TypeExpirySweep, nil, asynq.Queue("critical"), asynq.Unique(uniqueFor), asynq.MaxRetry(0))
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg        *config.Config
	expiry     services.IExpiryService
	sessions   store.ICheckoutSessionStore
	archive    storage.IArchiveStorage
	mailer     email.Sender
	httpClient *http.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	expiry services.IExpiryService,
	sessions store.ICheckoutSessionStore,
	archive storage.IArchiveStorage,
	mailer email.Sender,
) *TaskProcessor {
	timeout := cfg.BridgeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TaskProcessor{
		cfg:        cfg,
		expiry:     expiry,
		sessions:   sessions,
		archive:    archive,
		mailer:     mailer,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetupServer configures an Asynq server and the handler mux. The caller starts it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("ERROR: [asynq] task %s failed: %v (payload %s)", task.Type(), err, string(task.Payload()))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExpirySweep, processor.HandleExpirySweepTask)
	mux.HandleFunc(TypeBridgeNotify, processor.HandleBridgeNotifyTask)
	mux.HandleFunc(TypeSessionArchive, processor.HandleSessionArchiveTask)
	mux.HandleFunc(TypeOwnerNotice, processor.HandleOwnerNoticeTask)
	log.Println("Registered background task handlers (sweep, bridge, archive, notice).")

	return srv, mux
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleExpirySweepTask(ctx context.Context, t *asynq.Task) error {
	result, err := p.expiry.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %w", err)
	}
	if result.Skipped {
		log.Println("Expiry sweep task skipped: lease held elsewhere")
	}
	return nil
}

// HandleBridgeNotifyTask forwards an activation to the bridge. Client errors from the
// bridge are final; server errors and network failures are retried.
func (p *TaskProcessor) HandleBridgeNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload BridgeNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal bridge payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ListingID == "" {
		return fmt.Errorf("bridge payload without listing id: %w", asynq.SkipRetry)
	}
	if p.cfg.BridgeURL == "" {
		log.Printf("Bridge not configured, dropping activation of listing %s", payload.ListingID)
		return nil
	}

	url := strings.TrimRight(p.cfg.BridgeURL, "/") + "/listings/activated"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(t.Payload()))
	if err != nil {
		return fmt.Errorf("failed to build bridge request: %v: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request for listing %s failed: %w", payload.ListingID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Printf("Bridge notified of activation of listing %s", payload.ListingID)
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		log.Printf("ERROR: bridge rejected listing %s with status %d", payload.ListingID, resp.StatusCode)
		return fmt.Errorf("bridge rejected listing %s (status %d): %w", payload.ListingID, resp.StatusCode, asynq.SkipRetry)
	default:
		return fmt.Errorf("bridge unavailable for listing %s (status %d)", payload.ListingID, resp.StatusCode)
	}
}

// HandleSessionArchiveTask writes a consumed checkout session to the archive bucket.
func (p *TaskProcessor) HandleSessionArchiveTask(ctx context.Context, t *asynq.Task) error {
	var payload SessionArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal archive payload: %v: %w", err, asynq.SkipRetry)
	}

	session, err := p.sessions.FindByID(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("session %s not found: %w", payload.SessionID, asynq.SkipRetry)
		}
		return err
	}
	if session.Status != models.SessionConsumed || session.ConsumedAt == nil {
		return fmt.Errorf("session %s is still open: %w", session.ID, asynq.SkipRetry)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %v: %w", session.ID, err, asynq.SkipRetry)
	}
	return p.archive.ArchiveObject(ctx, ArchiveKey(session), data, "application/json")
}

// HandleOwnerNoticeTask renders an owner notice and hands it to the mailer.
func (p *TaskProcessor) HandleOwnerNoticeTask(ctx context.Context, t *asynq.Task) error {
	var notice models.OwnerNotice
	if err := json.Unmarshal(t.Payload(), &notice); err != nil {
		return fmt.Errorf("failed to unmarshal notice payload: %v: %w", err, asynq.SkipRetry)
	}
	if notice.Email == "" {
		log.Printf("WARN: %s notice for listing %s has no recipient, dropping", notice.Kind, notice.ListingID)
		return nil
	}

	subject, rawMessage, err := email.ComposeNotice(p.cfg.SmtpFromAddress, notice, time.Now())
	if err != nil {
		return fmt.Errorf("failed to compose %s notice: %v: %w", notice.Kind, err, asynq.SkipRetry)
	}
	if err := p.mailer.Send(ctx, []string{notice.Email}, subject, rawMessage); err != nil {
		return fmt.Errorf("failed to send %s notice for listing %s: %w", notice.Kind, notice.ListingID, err)
	}
	return nil
}

// ArchiveKey is the object key of an archived session, grouped by month of consumption.
func ArchiveKey(session *models.CheckoutSession) string {
	return fmt.Sprintf("checkout-sessions/%s/%s.json", session.ConsumedAt.UTC().Format("2006/01"), session.ID)
}
