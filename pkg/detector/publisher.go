package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"loadsentry/pkg/events"
	"loadsentry/pkg/logger"
	"loadsentry/pkg/monitoring"
	"loadsentry/pkg/store/state"
	redisstore "loadsentry/pkg/store/redis"
)

const verdictFile = "verdict.json"

// Publisher owns the BottleneckVerdict document. The verdict is overwritten
// wholesale every tick through the atomic state store, so external readers
// never observe a partially written file. On the transition into or out of
// bottleneck_detected it emits the start/end notification to the event
// correlator.
type Publisher struct {
	store       *state.Store
	notifier    events.Notifier
	source      string
	mirror      *redisstore.VerdictMirror
	metrics     *monitoring.Metrics
	subscribers []func(*Verdict)
}

// NewPublisher creates the publisher. mirror and metrics may be nil.
func NewPublisher(store *state.Store, notifier events.Notifier, source string, mirror *redisstore.VerdictMirror, metrics *monitoring.Metrics) *Publisher {
	return &Publisher{
		store:    store,
		notifier: notifier,
		source:   source,
		mirror:   mirror,
		metrics:  metrics,
	}
}

// Subscribe registers a callback invoked after every published verdict. Used
// by the websocket stream.
func (p *Publisher) Subscribe(fn func(*Verdict)) {
	p.subscribers = append(p.subscribers, fn)
}

// Publish persists the verdict and emits the transition notifications. The
// previous verdict is read back only to detect the transition edge.
func (p *Publisher) Publish(ctx context.Context, v *Verdict) error {
	prev := p.last()

	if err := p.store.Save(verdictFile, v); err != nil {
		return fmt.Errorf("failed to persist verdict: %w", err)
	}

	p.emitTransition(ctx, prev, v)

	if p.metrics != nil {
		p.metrics.ObserveTick(v.Detected, v.Dimensions)
	}
	if p.mirror != nil {
		if data, err := json.Marshal(v); err == nil {
			if err := p.mirror.Publish(ctx, data); err != nil {
				logger.WarnCtx(ctx, "verdict mirror failed: %v", err)
			}
		}
	}
	for _, fn := range p.subscribers {
		fn(v)
	}
	return nil
}

// Last returns the persisted verdict, or an initialized placeholder when no
// run has published yet.
func (p *Publisher) Last() *Verdict {
	if v := p.last(); v != nil {
		return v
	}
	return &Verdict{Status: StatusInitialized}
}

func (p *Publisher) last() *Verdict {
	var v Verdict
	if err := p.store.Load(verdictFile, &v); err != nil {
		if !os.IsNotExist(err) {
			logger.Debugf("previous verdict unreadable: %v", err)
		}
		return nil
	}
	return &v
}

func (p *Publisher) emitTransition(ctx context.Context, prev, cur *Verdict) {
	prevDetected := prev != nil && prev.Detected

	switch {
	case cur.Detected && !prevDetected:
		ev := events.NewEvent(events.TypeBottleneck, p.source, p.detail(cur), cur.CurrentLoad)
		if err := p.notifier.Start(ctx, ev); err != nil {
			logger.WarnCtx(ctx, "failed to emit start notification: %v", err)
		}
	case !cur.Detected && prevDetected:
		ev := events.NewEvent(events.TypeBottleneck, p.source, "bottleneck cleared", cur.CurrentLoad)
		if err := p.notifier.End(ctx, ev); err != nil {
			logger.WarnCtx(ctx, "failed to emit end notification: %v", err)
		}
	}
}

func (p *Publisher) detail(v *Verdict) string {
	parts := make([]string, 0, len(v.Dimensions))
	for i, dim := range v.Dimensions {
		value := ""
		if i < len(v.Values) {
			value = v.Values[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%s", dim, value))
	}
	return strings.Join(parts, " ")
}
