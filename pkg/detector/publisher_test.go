package detector

import (
	"context"
	"testing"
	"time"

	"loadsentry/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	started []events.Event
	ended   []events.Event
}

func (n *recordingNotifier) Start(ctx context.Context, ev events.Event) error {
	n.started = append(n.started, ev)
	return nil
}

func (n *recordingNotifier) End(ctx context.Context, ev events.Event) error {
	n.ended = append(n.ended, ev)
	return nil
}

// TestPublisher_VerdictRoundTrip tests that a published verdict is read back
// losslessly through the state store.
func TestPublisher_VerdictRoundTrip(t *testing.T) {
	store := newTestStore(t)
	publisher := NewPublisher(store, &recordingNotifier{}, "loadsentry", nil, nil)

	now := time.Now().UTC().Truncate(time.Second)
	in := &Verdict{
		Status:        StatusDetected,
		Detected:      true,
		Dimensions:    []string{"EBS_AWS_IOPS", "RPC_LATENCY"},
		Values:        []string{"15000/16000", "1200.0ms"},
		DetectionTime: &now,
		CurrentLoad:   4000,
		Snapshot:      MetricSnapshot{CPUPct: 42.5, Primary: DeviceMetrics{StandardIOPS: 15000}},
		Baselines:     map[string]DeviceBaseline{"EBS": {Device: "nvme1n1", IOPS: 16000}},
		Counters:      map[string]int{"EBS_AWS_IOPS": 3},
	}
	require.NoError(t, publisher.Publish(context.Background(), in))

	out := publisher.Last()
	assert.Equal(t, in.Status, out.Status)
	assert.Equal(t, in.Dimensions, out.Dimensions)
	assert.Equal(t, in.Values, out.Values)
	assert.Equal(t, in.CurrentLoad, out.CurrentLoad)
	assert.Equal(t, in.Snapshot.CPUPct, out.Snapshot.CPUPct)
	assert.Equal(t, in.Baselines, out.Baselines)
	assert.Equal(t, in.Counters, out.Counters)
	require.NotNil(t, out.DetectionTime)
	assert.True(t, now.Equal(*out.DetectionTime))
}

// TestPublisher_LastBeforeFirstPublish tests the initialized placeholder.
func TestPublisher_LastBeforeFirstPublish(t *testing.T) {
	publisher := NewPublisher(newTestStore(t), &recordingNotifier{}, "loadsentry", nil, nil)

	v := publisher.Last()
	assert.Equal(t, StatusInitialized, v.Status)
	assert.False(t, v.Detected)
}

// TestPublisher_TransitionEvents tests that the start notification fires
// exactly on the edge into bottleneck_detected and the end notification on
// the edge out, never on steady state.
func TestPublisher_TransitionEvents(t *testing.T) {
	store := newTestStore(t)
	notifier := &recordingNotifier{}
	publisher := NewPublisher(store, notifier, "loadsentry", nil, nil)
	ctx := context.Background()

	monitoring := &Verdict{Status: StatusMonitoring, CurrentLoad: 1000}
	detected := &Verdict{
		Status:      StatusDetected,
		Detected:    true,
		Dimensions:  []string{"RPC_LATENCY"},
		Values:      []string{"1500.0ms"},
		CurrentLoad: 2000,
	}

	require.NoError(t, publisher.Publish(ctx, monitoring))
	assert.Empty(t, notifier.started)

	require.NoError(t, publisher.Publish(ctx, detected))
	require.Len(t, notifier.started, 1)
	assert.Equal(t, events.TypeBottleneck, notifier.started[0].Type)
	assert.Equal(t, "loadsentry", notifier.started[0].Source)
	assert.Equal(t, "RPC_LATENCY=1500.0ms", notifier.started[0].Detail)
	assert.Equal(t, 2000, notifier.started[0].CurrentLoad)

	// steady detected state emits nothing further
	require.NoError(t, publisher.Publish(ctx, detected))
	assert.Len(t, notifier.started, 1)
	assert.Empty(t, notifier.ended)

	// recovery edge
	require.NoError(t, publisher.Publish(ctx, monitoring))
	require.Len(t, notifier.ended, 1)
	assert.Equal(t, "bottleneck cleared", notifier.ended[0].Detail)

	// and steady monitoring is quiet again
	require.NoError(t, publisher.Publish(ctx, monitoring))
	assert.Len(t, notifier.started, 1)
	assert.Len(t, notifier.ended, 1)
}

// TestPublisher_Subscribers tests that registered callbacks see every
// published verdict.
func TestPublisher_Subscribers(t *testing.T) {
	publisher := NewPublisher(newTestStore(t), &recordingNotifier{}, "loadsentry", nil, nil)

	var seen []*Verdict
	publisher.Subscribe(func(v *Verdict) { seen = append(seen, v) })

	require.NoError(t, publisher.Publish(context.Background(), &Verdict{Status: StatusMonitoring}))
	require.NoError(t, publisher.Publish(context.Background(), &Verdict{Status: StatusDetected, Detected: true}))

	require.Len(t, seen, 2)
	assert.True(t, seen[1].Detected)
}
