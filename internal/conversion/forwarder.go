// Package conversion relays recorded tracking events to an external
// ad-conversion ingestion API. Forwarding is strictly best-effort: the
// tracking response path never waits on, and never observes, the outcome
// of an external call.
package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cardlink/pixel-tracker/internal/config"
	"github.com/cardlink/pixel-tracker/internal/logger"
	"github.com/cardlink/pixel-tracker/internal/metrics"
)

// Request carries everything needed to forward one recorded event.
// EventID is the persisted event's identifier, used as the correlation key.
type Request struct {
	AccountID   string
	AccessToken string
	EventType   string
	EventID     int64
	VCardID     string
	IP          string
	UserAgent   string
	Metadata    map[string]any
	Value       float64
	Currency    string
	EventTime   int64
}

// payload is the wire format of the conversion ingestion API.
type payload struct {
	Data []serverEvent `json:"data"`
}

type serverEvent struct {
	EventName    string         `json:"event_name"`
	EventTime    int64          `json:"event_time"`
	ActionSource string         `json:"action_source"`
	UserData     userData       `json:"user_data"`
	CustomData   map[string]any `json:"custom_data"`
}

type userData struct {
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
}

// Forwarder dispatches conversion requests from a bounded queue on a
// background worker, so handlers enqueue without blocking.
type Forwarder struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	queue    chan Request
	closed   chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	log      logger.Logger
}

// New creates a Forwarder with a bounded dispatch queue.
func New(cfg config.ConversionConfig, log logger.Logger) *Forwarder {
	return &Forwarder{
		client:   &http.Client{},
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		queue:    make(chan Request, cfg.QueueSize),
		closed:   make(chan struct{}),
		log:      log,
	}
}

// Start launches the background dispatch worker.
func (f *Forwarder) Start() {
	f.wg.Add(1)
	go f.dispatchLoop()
}

// Stop signals shutdown, drains queued requests, and waits for the worker.
// It is safe to call multiple times.
func (f *Forwarder) Stop() {
	f.once.Do(func() {
		close(f.closed)
	})
	f.wg.Wait()
}

// Enqueue performs a non-blocking send of a request into the queue.
// It returns false if the queue is full; the event is then dropped, which
// is acceptable for best-effort forwarding.
func (f *Forwarder) Enqueue(req Request) bool {
	select {
	case f.queue <- req:
		return true
	default:
		return false
	}
}

// dispatchLoop sends queued requests until shutdown, then drains the queue.
func (f *Forwarder) dispatchLoop() {
	defer f.wg.Done()

	for {
		select {
		case req := <-f.queue:
			f.send(req)

		case <-f.closed:
			f.drain()
			return
		}
	}
}

// drain sends all requests remaining in the queue.
func (f *Forwarder) drain() {
	for {
		select {
		case req := <-f.queue:
			f.send(req)
		default:
			return
		}
	}
}

// send posts one conversion event. Any transport or API error is logged
// and discarded.
func (f *Forwarder) send(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		f.log.Error("Failed to marshal conversion payload", logger.Error(err))
		return
	}

	target := fmt.Sprintf("%s/%s/events?access_token=%s",
		f.endpoint, req.AccountID, url.QueryEscape(req.AccessToken))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		f.log.Error("Failed to build conversion request", logger.Error(err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		metrics.ConversionFailuresTotal.Inc()
		f.log.Warn("Conversion forward failed",
			logger.Int64("event_id", req.EventID),
			logger.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.ConversionFailuresTotal.Inc()
		f.log.Warn("Conversion API rejected event",
			logger.Int64("event_id", req.EventID),
			logger.Int("status", resp.StatusCode),
			logger.String("body", string(respBody)),
		)
		return
	}

	metrics.ConversionForwardedTotal.Inc()
	f.log.Debug("Conversion event forwarded",
		logger.Int64("event_id", req.EventID),
		logger.String("account_id", req.AccountID),
	)
}

// buildPayload assembles the server-event body for one request.
func buildPayload(req Request) payload {
	custom := make(map[string]any, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		custom[k] = v
	}
	custom["event_id"] = req.EventID
	custom["vcard_id"] = req.VCardID
	if req.Value != 0 && req.Currency != "" {
		custom["value"] = req.Value
		custom["currency"] = req.Currency
	}

	eventTime := req.EventTime
	if eventTime == 0 {
		eventTime = time.Now().Unix()
	}

	return payload{
		Data: []serverEvent{{
			EventName:    ExternalEventName(req.EventType),
			EventTime:    eventTime,
			ActionSource: "website",
			UserData: userData{
				ClientIPAddress: req.IP,
				ClientUserAgent: req.UserAgent,
			},
			CustomData: custom,
		}},
	}
}
