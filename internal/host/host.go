// Package host is the central orchestrator for agendad.
//
// All application code (HTTP handlers, the WebSocket feed, webhook delivery)
// talks to the Host — never directly to the scheduler. The scheduler core has
// no internal locking, so the Host serialises every scheduler call behind one
// mutex and owns the goroutine that drives the periodic update pass.
//
// Data flow per tick:
//
//	ticker → Host.Tick → agenda.Scheduler.Update(clock)
//	       → warning observers  → metrics, feed hub
//	       → execution observers → metrics, history journal, feed hub, webhooks
package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hickagpt/agenda/internal/agenda"
	"github.com/hickagpt/agenda/internal/clock"
	"github.com/hickagpt/agenda/internal/event"
	"github.com/hickagpt/agenda/internal/history"
	"github.com/hickagpt/agenda/internal/metrics"
	"github.com/hickagpt/agenda/internal/transport/websocket"
	"github.com/hickagpt/agenda/internal/webhook"
)

// ScheduleRequest carries everything needed to schedule one event.
type ScheduleRequest struct {
	Name        string
	Description string
	At          time.Time
	WarnBefore  time.Duration // 0 = no warning stage

	// Action and WarnAction are only settable by in-process callers; events
	// created over the HTTP API carry no callbacks and are observable through
	// the feed, history, and webhooks instead. Callbacks run inside Tick with
	// the host lock held and must not call back into the Host.
	Action     event.Action
	WarnAction event.Action
}

// Option is a functional option for the Host.
type Option func(*Host)

// WithMetrics attaches a metrics.Registry so every lifecycle transition
// increments the relevant counter.
func WithMetrics(reg *metrics.Registry) Option {
	return func(h *Host) { h.metrics = reg }
}

// WithHistory attaches a journal that records every executed event.
func WithHistory(j *history.Journal) Option {
	return func(h *Host) { h.journal = j }
}

// WithFeed attaches a WebSocket hub that receives a frame per warning and
// execution.
func WithFeed(hub *websocket.Hub) Option {
	return func(h *Host) { h.hub = hub }
}

// WithWebhooks attaches a webhook manager notified of every execution.
func WithWebhooks(m *webhook.Manager) Option {
	return func(h *Host) { h.hooks = m }
}

// Host wires the scheduler core to its clock and integrations and exposes a
// concurrency-safe surface to the transports.
type Host struct {
	mu    sync.Mutex
	sched *agenda.Scheduler
	clk   clock.Clock
	tick  time.Duration

	// Optional integrations (set via functional options).
	metrics *metrics.Registry
	journal *history.Journal
	hub     *websocket.Hub
	hooks   *webhook.Manager

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Host driving a fresh scheduler from clk at the given tick
// interval. Call Start to begin ticking, or Tick directly for manual control.
func New(clk clock.Clock, tick time.Duration, opts ...Option) *Host {
	h := &Host{
		sched: agenda.New(),
		clk:   clk,
		tick:  tick,
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}

	// Observer registration happens once, under no lock: the scheduler is not
	// yet shared. Observers run inside Tick, which already holds h.mu.
	h.sched.SubscribeWarnings(h.onWarning)
	h.sched.Subscribe(h.onExecuted)
	return h
}

func (h *Host) onWarning(ev *event.Event) {
	if h.metrics != nil {
		h.metrics.Warned.Add(1)
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.Frame{
			Type:  websocket.FrameWarning,
			Event: ev.Record(),
			At:    h.clk.Now().UnixMilli(),
		})
	}
	slog.Debug("warning fired", "id", ev.ID(), "name", ev.Name())
}

func (h *Host) onExecuted(ev *event.Event) {
	now := h.clk.Now()
	rec := ev.Record()

	if h.metrics != nil {
		h.metrics.Executed.Add(1)
	}
	if h.journal != nil {
		if err := h.journal.Append(rec, now); err != nil {
			slog.Warn("history append failed", "id", rec.ID, "err", err)
		}
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.Frame{
			Type:  websocket.FrameExecuted,
			Event: rec,
			At:    now.UnixMilli(),
		})
	}
	if h.hooks != nil {
		h.hooks.Notify(webhook.Payload{Event: rec, ExecutedAt: now.UnixMilli()})
	}
	slog.Info("event executed", "id", rec.ID, "name", rec.Name, "scheduled_at", rec.At)
}

// Schedule inserts a new event built from req and returns its ID.
func (h *Host) Schedule(req ScheduleRequest) string {
	ev := event.New(event.Options{
		Name:        req.Name,
		Description: req.Description,
		At:          req.At,
		WarnBefore:  req.WarnBefore,
		Action:      req.Action,
		WarnAction:  req.WarnAction,
	})

	h.mu.Lock()
	id := h.sched.Schedule(ev)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Scheduled.Add(1)
	}
	slog.Info("event scheduled", "id", id, "name", req.Name, "at", req.At)
	return id
}

// Cancel removes the event with the given ID, reporting whether one existed.
func (h *Host) Cancel(id string) bool {
	h.mu.Lock()
	removed := h.sched.Cancel(id)
	h.mu.Unlock()

	if removed && h.metrics != nil {
		h.metrics.Cancelled.Add(1)
	}
	return removed
}

// Reschedule moves the event with the given ID to a new time, reporting
// whether one existed. The scheduler core treats unknown IDs as a silent
// no-op; transports want a 404, so existence is checked here.
func (h *Host) Reschedule(id string, at time.Time) bool {
	h.mu.Lock()
	found := h.sched.Get(id) != nil
	if found {
		h.sched.Reschedule(id, at)
	}
	h.mu.Unlock()

	if found && h.metrics != nil {
		h.metrics.Rescheduled.Add(1)
	}
	return found
}

// Get returns a snapshot of the event with the given ID.
func (h *Host) Get(id string) (event.Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev := h.sched.Get(id)
	if ev == nil {
		return event.Record{}, false
	}
	return ev.Record(), true
}

// List returns snapshots of all scheduled events in schedule order.
func (h *Host) List() []event.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := h.sched.Events()
	out := make([]event.Record, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Record())
	}
	return out
}

// Len returns the number of currently scheduled events.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sched.Len()
}

// Tick runs one update pass immediately. Exposed for tests and embedders
// that drive the scheduler from their own loop.
func (h *Host) Tick() {
	h.mu.Lock()
	h.sched.Update(h.clk)
	h.mu.Unlock()
}

// Start launches the tick loop. It runs until ctx is cancelled or Stop is
// called. Start must be called at most once.
func (h *Host) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-ticker.C:
				h.Tick()
			}
		}
	}()
}

// Stop shuts down the tick loop and waits for it to exit. Events still
// scheduled are abandoned — pending state does not outlive the process.
func (h *Host) Stop() {
	select {
	case <-h.done:
		// already stopped
	default:
		close(h.done)
	}
	h.wg.Wait()
}
