package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var errCircuitOpen = errors.New("circuit_open")

// Event is the webhook payload pushed to the host's endpoint. Forced exits
// are delivered here so the creator learns about them even when no client of
// theirs is watching the room stream.
type Event struct {
	Type       string    `json:"type"`
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const TypeForcedExit = "participant_force_exited"

type Config struct {
	WebhookURL          string
	QueueSize           int
	RetryMax            int
	RetryBase           time.Duration
	SendTimeout         time.Duration
	FailureThreshold    int
	CircuitOpenDuration time.Duration
}

func (c *Config) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.CircuitOpenDuration <= 0 {
		c.CircuitOpenDuration = 30 * time.Second
	}
}

type pushJob struct {
	ev      Event
	attempt int
}

// Notifier delivers events to a single webhook endpoint through a bounded
// queue with exponential-backoff retries and a consecutive-failure breaker.
// With no endpoint configured every publish is a no-op.
type Notifier struct {
	cfg    Config
	client *http.Client

	jobs      chan pushJob
	done      chan struct{}
	closeOnce sync.Once

	mu                  sync.Mutex
	consecutiveFailures int
	openUntil           time.Time
}

func New(cfg Config) *Notifier {
	cfg.defaults()
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.SendTimeout},
		jobs:   make(chan pushJob, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

func (n *Notifier) Enabled() bool {
	return n.cfg.WebhookURL != ""
}

func (n *Notifier) Start(ctx context.Context) {
	if !n.Enabled() {
		return
	}
	go n.worker(ctx)
}

func (n *Notifier) Close() {
	n.closeOnce.Do(func() { close(n.done) })
}

// Publish enqueues without blocking; a full queue drops the event.
func (n *Notifier) Publish(ev Event) {
	if !n.Enabled() {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case n.jobs <- pushJob{ev: ev}:
	default:
		log.Warn().Str("room_id", ev.RoomID).Str("type", ev.Type).Msg("notify queue full, event dropped")
	}
}

func (n *Notifier) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case job := <-n.jobs:
			n.processJob(ctx, job)
		}
	}
}

func (n *Notifier) processJob(ctx context.Context, job pushJob) {
	if err := n.beforeSend(time.Now()); err != nil {
		n.retryOrDrop(job)
		return
	}
	if err := n.send(ctx, job.ev); err != nil {
		log.Debug().Err(err).Int("attempt", job.attempt).Msg("notify send failed")
		n.afterFailure(time.Now())
		n.retryOrDrop(job)
		return
	}
	n.afterSuccess()
}

func (n *Notifier) send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) retryOrDrop(job pushJob) {
	if job.attempt >= n.cfg.RetryMax {
		log.Warn().Str("room_id", job.ev.RoomID).Str("type", job.ev.Type).Msg("notify retries exhausted, event dropped")
		return
	}
	job.attempt++
	delay := n.cfg.RetryBase * time.Duration(1<<(job.attempt-1))
	time.AfterFunc(delay, func() {
		select {
		case <-n.done:
		case n.jobs <- job:
		default:
		}
	})
}

func (n *Notifier) beforeSend(now time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.openUntil.IsZero() && now.Before(n.openUntil) {
		return errCircuitOpen
	}
	return nil
}

func (n *Notifier) afterFailure(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consecutiveFailures++
	if n.consecutiveFailures >= n.cfg.FailureThreshold {
		n.openUntil = now.Add(n.cfg.CircuitOpenDuration)
		n.consecutiveFailures = 0
	}
}

func (n *Notifier) afterSuccess() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consecutiveFailures = 0
	n.openUntil = time.Time{}
}
