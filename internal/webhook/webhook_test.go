package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hickagpt/agenda/internal/config"
	"github.com/hickagpt/agenda/internal/event"
	"github.com/hickagpt/agenda/internal/webhook"
)

func testConfig() config.WebhookConfig {
	return config.WebhookConfig{
		RetryDelaysMs: []int{10, 10},
		TimeoutMs:     2_000,
	}
}

func payload() webhook.Payload {
	return webhook.Payload{
		Event: event.Record{
			ID:   "01ARZ3NDEKTSV4RRFFQ69G5FAV",
			Name: "deploy",
			At:   time.Now().UnixMilli(),
		},
		ExecutedAt: time.Now().UnixMilli(),
	}
}

func TestRegisterAndList(t *testing.T) {
	m := webhook.NewManager(testConfig())
	defer m.Close()

	id, err := m.Register("http://localhost:9/hook", "")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if id == "" {
		t.Fatal("Register returned empty ID")
	}

	subs := m.List()
	if len(subs) != 1 {
		t.Fatalf("List returned %d subscriptions, want 1", len(subs))
	}
	if subs[0].ID != id || subs[0].URL != "http://localhost:9/hook" {
		t.Errorf("subscription snapshot wrong: %+v", subs[0])
	}
}

func TestRegister_EmptyURL(t *testing.T) {
	m := webhook.NewManager(testConfig())
	defer m.Close()

	if _, err := m.Register("", ""); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestDeregister(t *testing.T) {
	m := webhook.NewManager(testConfig())
	defer m.Close()

	id, _ := m.Register("http://localhost:9/hook", "")

	if err := m.Deregister(id); err != nil {
		t.Errorf("Deregister() error: %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("subscription still listed after Deregister")
	}

	err := m.Deregister(id)
	if !errors.Is(err, webhook.ErrSubscriptionNotFound) {
		t.Errorf("expected ErrSubscriptionNotFound, got: %v", err)
	}
}

func TestNotify_DeliversPayload(t *testing.T) {
	got := make(chan webhook.Payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhook.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := webhook.NewManager(testConfig())
	defer m.Close()
	if _, err := m.Register(srv.URL, ""); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	want := payload()
	m.Notify(want)

	select {
	case p := <-got:
		if p.Event.ID != want.Event.ID || p.Event.Name != want.Event.Name {
			t.Errorf("delivered payload = %+v, want %+v", p.Event, want.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestNotify_SignsWithSecret(t *testing.T) {
	const secret = "topsecret"
	type result struct {
		sig  string
		body []byte
	}
	got := make(chan result, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- result{sig: r.Header.Get("X-Agenda-Signature"), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := webhook.NewManager(testConfig())
	defer m.Close()
	if _, err := m.Register(srv.URL, secret); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	m.Notify(payload())

	select {
	case r := <-got:
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(r.body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if r.sig != want {
			t.Errorf("signature = %q, want %q", r.sig, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestNotify_RetriesOnFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := webhook.NewManager(testConfig())
	defer m.Close()
	if _, err := m.Register(srv.URL, ""); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	m.Notify(payload())

	waitFor(t, func() bool { return calls.Load() == 3 })
}

func TestNotify_FansOutToAllSubscribers(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := webhook.NewManager(testConfig())
	defer m.Close()
	for i := 0; i < 3; i++ {
		if _, err := m.Register(srv.URL, ""); err != nil {
			t.Fatalf("Register() error: %v", err)
		}
	}

	m.Notify(payload())

	waitFor(t, func() bool { return calls.Load() == 3 })
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}
