// Package webhook pushes executed-event notifications to HTTP subscribers.
//
// A subscription is a URL plus an optional shared secret. Every time the
// update pass executes an event, each subscriber receives one POST carrying
// the event's final snapshot. Delivery is asynchronous with a fixed retry
// ladder so a slow endpoint never stalls the tick loop.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hickagpt/agenda/internal/config"
	"github.com/hickagpt/agenda/internal/event"
	"github.com/hickagpt/agenda/internal/ident"
)

// ErrSubscriptionNotFound is returned when Deregister is given an unknown ID.
var ErrSubscriptionNotFound = errors.New("webhook: subscription not found")

// Payload is the JSON body POSTed to each subscriber.
type Payload struct {
	Event      event.Record `json:"event"`
	ExecutedAt int64        `json:"executed_at"` // UTC milliseconds
}

// Subscription is one registered webhook endpoint.
type Subscription struct {
	ID  string `json:"id"`
	URL string `json:"url"`

	secret string
}

// Manager owns the subscription registry and the delivery workers.
// All methods are safe for concurrent use.
type Manager struct {
	client      *http.Client
	retryDelays []time.Duration

	mu   sync.RWMutex
	subs map[string]*Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds a Manager from the webhook section of the config.
func NewManager(cfg config.WebhookConfig) *Manager {
	delays := make([]time.Duration, 0, len(cfg.RetryDelaysMs))
	for _, ms := range cfg.RetryDelaysMs {
		delays = append(delays, time.Duration(ms)*time.Millisecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		retryDelays: delays,
		subs:        make(map[string]*Subscription),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Register adds a subscriber and returns its ID.
func (m *Manager) Register(url, secret string) (string, error) {
	if url == "" {
		return "", errors.New("webhook: url must not be empty")
	}
	id, err := ident.NewID()
	if err != nil {
		return "", fmt.Errorf("webhook: generate subscription ID: %w", err)
	}
	m.mu.Lock()
	m.subs[id] = &Subscription{ID: id, URL: url, secret: secret}
	m.mu.Unlock()
	slog.Info("webhook subscription registered", "id", id, "url", url)
	return id, nil
}

// Deregister removes a subscriber. In-flight deliveries run to completion.
func (m *Manager) Deregister(id string) error {
	m.mu.Lock()
	_, ok := m.subs[id]
	if ok {
		delete(m.subs, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	slog.Info("webhook subscription removed", "id", id)
	return nil
}

// List returns a snapshot of all current subscriptions.
func (m *Manager) List() []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, Subscription{ID: s.ID, URL: s.URL})
	}
	return out
}

// Notify fans the payload out to every current subscriber. Each delivery runs
// on its own goroutine so the caller (the tick loop) returns immediately.
func (m *Manager) Notify(p Payload) {
	m.mu.RLock()
	targets := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, sub := range targets {
		m.wg.Add(1)
		go func(sub *Subscription) {
			defer m.wg.Done()
			m.deliverWithRetry(sub, p)
		}(sub)
	}
}

// Close stops retry waits and blocks until all in-flight deliveries finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// deliverWithRetry attempts delivery once plus one retry per configured delay.
func (m *Manager) deliverWithRetry(sub *Subscription, p Payload) {
	err := m.deliver(sub, p)
	if err == nil {
		return
	}
	for _, delay := range m.retryDelays {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}
		if err = m.deliver(sub, p); err == nil {
			return
		}
	}
	slog.Warn("webhook delivery abandoned",
		"subscription", sub.ID, "url", sub.URL, "event", p.Event.ID, "err", err)
}

// deliver POSTs p to the subscription URL.
// Returns nil only when the endpoint responds with HTTP 200 OK.
func (m *Manager) deliver(sub *Subscription, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(m.ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Sign the request body when a secret is provided.
	if sub.secret != "" {
		mac := hmac.New(sha256.New, []byte(sub.secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Agenda-Signature", "sha256="+sig)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: POST to %s: %w", sub.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}
	return nil
}
