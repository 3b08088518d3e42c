package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LogSink writes every notification to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(ctx context.Context, n *Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"type", n.Type,
		"assignment_id", n.AssignmentID,
		"evaluation_id", n.EvaluationID,
		"actor_id", n.ActorID,
		"target_user_id", n.TargetUserID,
	)
	return nil
}

// WebhookSink POSTs each notification as JSON to a fixed URL.
type WebhookSink struct {
	URL    string
	Client *http.Client
	// Limiter throttles deliveries when set. Deliver waits for a token.
	Limiter *rate.Limiter
}

// NewWebhookSink creates a webhook sink with its own HTTP client.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// WithRateLimit caps deliveries at perSecond with the given burst.
// A non-positive rate leaves the sink unthrottled.
func (s *WebhookSink) WithRateLimit(perSecond float64, burst int) *WebhookSink {
	if perSecond <= 0 {
		s.Limiter = nil
		return s
	}
	if burst < 1 {
		burst = 1
	}
	s.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return s
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver implements Sink.
func (s *WebhookSink) Deliver(ctx context.Context, n *Notification) error {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("webhook rate limit: %w", err)
		}
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Evalflow-Event", string(n.Type))

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Recorder keeps notifications in memory. It is both a Publisher (synchronous)
// and a Sink, which makes it convenient for tests and the console.
type Recorder struct {
	mu            sync.Mutex
	notifications []*Notification
}

// Publish implements Publisher.
func (r *Recorder) Publish(n *Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

// Name implements Sink.
func (r *Recorder) Name() string { return "recorder" }

// Deliver implements Sink.
func (r *Recorder) Deliver(_ context.Context, n *Notification) error {
	r.Publish(n)
	return nil
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []*Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// OfType returns the recorded notifications of one type.
func (r *Recorder) OfType(t EventType) []*Notification {
	var out []*Notification
	for _, n := range r.Notifications() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
