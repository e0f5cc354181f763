package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hickagpt/agenda/internal/event"
	"github.com/hickagpt/agenda/internal/history"
	"github.com/hickagpt/agenda/internal/host"
	"github.com/hickagpt/agenda/internal/webhook"
)

// maxNameBytes bounds the display metadata accepted over the API.
const (
	maxNameBytes        = 256
	maxDescriptionBytes = 4096
)

// Handler groups all HTTP request handlers around a Host.
type Handler struct {
	host       *host.Host
	journal    *history.Journal // may be nil when history is disabled
	hooks      *webhook.Manager
	instanceID string
	maxRecent  int
}

// ─── DTOs ─────────────────────────────────────────────────────────────────────

type scheduleReq struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	At           int64  `json:"at"`             // unix ms; required
	WarnBeforeMs int64  `json:"warn_before_ms"` // 0 = no warning stage
}

type scheduleResp struct {
	ID string `json:"id"`
}

type rescheduleReq struct {
	At int64 `json:"at"` // unix ms; required
}

type eventListResp struct {
	Events []event.Record `json:"events"`
}

type historyResp struct {
	Entries []history.Entry `json:"entries"`
}

type subscribeReq struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

type subscribeResp struct {
	ID string `json:"id"`
}

type subscriptionListResp struct {
	Subscriptions []webhook.Subscription `json:"subscriptions"`
}

type healthResp struct {
	Status     string `json:"status"`
	InstanceID string `json:"instance_id"`
	Scheduled  int    `json:"scheduled"`
	Uptime     string `json:"uptime"`
	UptimeMs   int64  `json:"uptime_ms"`
	Version    string `json:"version"`
}

// ─── Health ───────────────────────────────────────────────────────────────────

var startTime = time.Now()

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	elapsed := time.Since(startTime)
	writeJSON(w, http.StatusOK, healthResp{
		Status:     "ok",
		InstanceID: h.instanceID,
		Scheduled:  h.host.Len(),
		Uptime:     elapsed.Round(time.Second).String(),
		UptimeMs:   elapsed.Milliseconds(),
		Version:    "1.0.0",
	})
}

// ─── Events ───────────────────────────────────────────────────────────────────

func (h *Handler) scheduleEvent(w http.ResponseWriter, r *http.Request) {
	var req scheduleReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.At <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at (unix milliseconds) is required"})
		return
	}
	if req.WarnBeforeMs < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "warn_before_ms must not be negative"})
		return
	}
	if len(req.Name) > maxNameBytes || len(req.Description) > maxDescriptionBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name or description too long"})
		return
	}

	id := h.host.Schedule(host.ScheduleRequest{
		Name:        req.Name,
		Description: req.Description,
		At:          time.UnixMilli(req.At),
		WarnBefore:  time.Duration(req.WarnBeforeMs) * time.Millisecond,
	})
	writeJSON(w, http.StatusCreated, scheduleResp{ID: id})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events := h.host.List()
	if events == nil {
		events = []event.Record{}
	}
	writeJSON(w, http.StatusOK, eventListResp{Events: events})
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := h.host.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) cancelEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.host.Cancel(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rescheduleEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req rescheduleReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.At <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at (unix milliseconds) is required"})
		return
	}

	if !h.host.Reschedule(id, time.UnixMilli(req.At)) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	rec, _ := h.host.Get(id)
	writeJSON(w, http.StatusOK, rec)
}

// ─── History ──────────────────────────────────────────────────────────────────

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history is disabled"})
		return
	}
	entries, err := h.journal.Recent(h.maxRecent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, historyResp{Entries: entries})
}

func (h *Handler) getHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history is disabled"})
		return
	}
	id := r.PathValue("id")
	entry, err := h.journal.Get(id)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, history.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ─── Webhook subscriptions ────────────────────────────────────────────────────

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscribeReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validWebhookURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url must be an http or https URL"})
		return
	}

	id, err := h.hooks.Register(req.URL, req.Secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscribeResp{ID: id})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs := h.hooks.List()
	if subs == nil {
		subs = []webhook.Subscription{}
	}
	writeJSON(w, http.StatusOK, subscriptionListResp{Subscriptions: subs})
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.hooks.Deregister(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}

// validWebhookURL checks that the target URL is a plain http or https address.
// This prevents SSRF via other URI schemes (file://, ftp://, gopher://, etc.).
// It does not block private RFC-1918 ranges because agendad is a self-hosted
// daemon where the operator controls what endpoints are reachable.
func validWebhookURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
