package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"loadsentry/pkg/logger"

	"github.com/google/uuid"
)

// Event types understood by the external event correlator.
const (
	TypeBottleneck = "bottleneck"
)

// Event is one start/end notification. The correlator owns pairing start and
// end; the engine only emits the two calls.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	Detail      string    `json:"detail"`
	CurrentLoad int       `json:"currentLoad"`
	Time        time.Time `json:"time"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(eventType, source, detail string, currentLoad int) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Source:      source,
		Detail:      detail,
		CurrentLoad: currentLoad,
		Time:        time.Now(),
	}
}

// Notifier delivers start/end notifications to the event correlator.
type Notifier interface {
	Start(ctx context.Context, ev Event) error
	End(ctx context.Context, ev Event) error
}

// HTTPNotifier posts events to the correlator's HTTP endpoint.
type HTTPNotifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPNotifier creates the notifier.
func NewHTTPNotifier(endpoint string) *HTTPNotifier {
	return &HTTPNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Start implements Notifier.
func (n *HTTPNotifier) Start(ctx context.Context, ev Event) error {
	return n.post(ctx, "/events/start", ev)
}

// End implements Notifier.
func (n *HTTPNotifier) End(ctx context.Context, ev Event) error {
	return n.post(ctx, "/events/end", ev)
}

func (n *HTTPNotifier) post(ctx context.Context, path string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("event correlator returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier logs events instead of delivering them, used when no correlator
// endpoint is configured.
type LogNotifier struct{}

// NewLogNotifier creates the notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Start implements Notifier.
func (n *LogNotifier) Start(ctx context.Context, ev Event) error {
	logger.InfoCtx(ctx, "event start: type=%s source=%s load=%d detail=%s", ev.Type, ev.Source, ev.CurrentLoad, ev.Detail)
	return nil
}

// End implements Notifier.
func (n *LogNotifier) End(ctx context.Context, ev Event) error {
	logger.InfoCtx(ctx, "event end: type=%s source=%s load=%d detail=%s", ev.Type, ev.Source, ev.CurrentLoad, ev.Detail)
	return nil
}
