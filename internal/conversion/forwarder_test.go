package conversion

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cardlink/pixel-tracker/internal/config"
	"github.com/cardlink/pixel-tracker/internal/logger"
)

const deliveryTimeout = 2 * time.Second

type capturedRequest struct {
	path  string
	query string
	body  payload
}

func newCaptureServer(t *testing.T) (*httptest.Server, chan capturedRequest) {
	t.Helper()

	captured := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}

		var p payload
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("parse body: %v", err)
		}

		captured <- capturedRequest{
			path:  r.URL.Path,
			query: r.URL.RawQuery,
			body:  p,
		}
		w.WriteHeader(http.StatusOK)
	}))

	return srv, captured
}

func newTestForwarder(endpoint string, queueSize int) *Forwarder {
	return New(config.ConversionConfig{
		Enabled:   true,
		Endpoint:  endpoint,
		Timeout:   deliveryTimeout,
		QueueSize: queueSize,
	}, logger.NewNop())
}

func TestForwarder_SendsMappedPayload(t *testing.T) {
	srv, captured := newCaptureServer(t)
	defer srv.Close()

	f := newTestForwarder(srv.URL, 10)
	f.Start()
	defer f.Stop()

	ok := f.Enqueue(Request{
		AccountID:   "act_123",
		AccessToken: "secret-token",
		EventType:   "view",
		EventID:     42,
		VCardID:     "vc_9",
		IP:          "203.0.113.7",
		UserAgent:   "Mozilla/5.0",
		Metadata:    map[string]any{"page": "profile"},
		Value:       10.99,
		Currency:    "USD",
		EventTime:   1700000000,
	})
	if !ok {
		t.Fatal("expected Enqueue to succeed")
	}

	var got capturedRequest
	select {
	case got = <-captured:
	case <-time.After(deliveryTimeout):
		t.Fatal("conversion request was not delivered")
	}

	if got.path != "/act_123/events" {
		t.Errorf("path: got %q, want %q", got.path, "/act_123/events")
	}
	if got.query != "access_token=secret-token" {
		t.Errorf("query: got %q, want %q", got.query, "access_token=secret-token")
	}

	if len(got.body.Data) != 1 {
		t.Fatalf("expected 1 server event, got %d", len(got.body.Data))
	}
	evt := got.body.Data[0]

	if evt.EventName != "ViewContent" {
		t.Errorf("event_name: got %q, want %q", evt.EventName, "ViewContent")
	}
	if evt.EventTime != 1700000000 {
		t.Errorf("event_time: got %d, want %d", evt.EventTime, 1700000000)
	}
	if evt.ActionSource != "website" {
		t.Errorf("action_source: got %q, want %q", evt.ActionSource, "website")
	}
	if evt.UserData.ClientIPAddress != "203.0.113.7" {
		t.Errorf("client_ip_address: got %q", evt.UserData.ClientIPAddress)
	}
	if evt.UserData.ClientUserAgent != "Mozilla/5.0" {
		t.Errorf("client_user_agent: got %q", evt.UserData.ClientUserAgent)
	}

	// JSON numbers decode as float64.
	if got := evt.CustomData["event_id"]; got != float64(42) {
		t.Errorf("custom_data.event_id: got %v, want 42", got)
	}
	if got := evt.CustomData["vcard_id"]; got != "vc_9" {
		t.Errorf("custom_data.vcard_id: got %v, want vc_9", got)
	}
	if got := evt.CustomData["value"]; got != 10.99 {
		t.Errorf("custom_data.value: got %v, want 10.99", got)
	}
	if got := evt.CustomData["currency"]; got != "USD" {
		t.Errorf("custom_data.currency: got %v, want USD", got)
	}
	if got := evt.CustomData["page"]; got != "profile" {
		t.Errorf("custom_data.page: got %v, want profile", got)
	}
}

func TestForwarder_OmitsValueWithoutCurrency(t *testing.T) {
	srv, captured := newCaptureServer(t)
	defer srv.Close()

	f := newTestForwarder(srv.URL, 10)
	f.Start()
	defer f.Stop()

	f.Enqueue(Request{
		AccountID:   "act_123",
		AccessToken: "tok",
		EventType:   "click",
		EventID:     7,
		Value:       5,
	})

	var got capturedRequest
	select {
	case got = <-captured:
	case <-time.After(deliveryTimeout):
		t.Fatal("conversion request was not delivered")
	}

	if _, ok := got.body.Data[0].CustomData["value"]; ok {
		t.Error("value without currency should be omitted from custom_data")
	}
}

func TestForwarder_QueueFull(t *testing.T) {
	// Worker never started, so the queue fills up.
	f := newTestForwarder("http://127.0.0.1:1", 1)

	if !f.Enqueue(Request{EventID: 1}) {
		t.Fatal("expected first Enqueue to succeed")
	}
	if f.Enqueue(Request{EventID: 2}) {
		t.Fatal("expected Enqueue to return false when queue is full")
	}
}

func TestForwarder_StopDrainsQueue(t *testing.T) {
	srv, captured := newCaptureServer(t)
	defer srv.Close()

	f := newTestForwarder(srv.URL, 10)
	f.Enqueue(Request{AccountID: "act_1", AccessToken: "tok", EventType: "view", EventID: 1})
	f.Start()
	f.Stop()

	select {
	case <-captured:
	case <-time.After(deliveryTimeout):
		t.Fatal("Stop should drain queued requests before returning")
	}
}

func TestForwarder_UpstreamErrorIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	f := newTestForwarder(srv.URL, 10)
	f.Enqueue(Request{AccountID: "act_1", AccessToken: "tok", EventType: "view", EventID: 1})
	f.Start()
	f.Stop() // drains; must not panic or block on the failed send
}
