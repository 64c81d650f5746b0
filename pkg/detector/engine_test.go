package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"loadsentry/pkg/config"
	"loadsentry/pkg/store/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, health HealthSource) (*Engine, *state.Store, *recordingNotifier) {
	t.Helper()
	store := newTestStore(t)
	notifier := &recordingNotifier{}

	cfg := &config.Config{
		Devices: config.DevicesConfig{
			Primary: config.DeviceConfig{Name: "nvme1n1", BaselineIOPS: 16000},
		},
		Thresholds: config.DefaultThresholds(),
		RPC:        config.RPCConfig{TimeoutSeconds: 1}, // no endpoint, probe disabled
	}

	publisher := NewPublisher(store, notifier, "loadsentry", nil, nil)
	engine := NewEngine(cfg, store, health, publisher, nil, nil)
	return engine, store, notifier
}

// stubHealth is a switchable health signal for multi-tick scenarios.
type stubHealth struct{ unhealthy bool }

func (s *stubHealth) Unhealthy(ctx context.Context) bool { return s.unhealthy }

const iopsNearCeilingCSV = "timestamp,cpu_pct,mem_pct,nvme1n1_util_pct,nvme1n1_r_await_ms,nvme1n1_aws_std_iops\n" +
	"1,40,50,60,2.0,15000\n"

const quietCSV = "timestamp,cpu_pct,mem_pct,nvme1n1_util_pct,nvme1n1_r_await_ms,nvme1n1_aws_std_iops\n" +
	"1,10,20,30,1.0,2000\n"

// TestEngine_SystemBottleneckAfterConsecutiveBreaches drives the full tick
// path: sustained IOPS near the AWS ceiling on an unhealthy node confirms a
// system bottleneck on the third consecutive tick, not earlier.
func TestEngine_SystemBottleneckAfterConsecutiveBreaches(t *testing.T) {
	health := &stubHealth{}
	engine, _, notifier := newTestEngine(t, health)
	metricFile := writeMetricFile(t, iopsNearCeilingCSV)
	ctx := context.Background()

	req := DetectRequest{CurrentLoad: 4000, MetricFile: metricFile}

	v := engine.Detect(ctx, req)
	assert.False(t, v.Detected)
	assert.Equal(t, StatusMonitoring, v.Status)
	assert.Equal(t, 1, v.Counters["EBS_AWS_IOPS"])

	v = engine.Detect(ctx, req)
	assert.False(t, v.Detected)
	assert.Equal(t, 2, v.Counters["EBS_AWS_IOPS"])

	// the node health collaborator raises its flag as the device saturates
	health.unhealthy = true
	v = engine.Detect(ctx, req)
	require.True(t, v.Detected)
	assert.Equal(t, StatusDetected, v.Status)
	assert.Contains(t, v.Dimensions, "EBS_AWS_IOPS")
	assert.Contains(t, v.Dimensions, "NODE_UNHEALTHY")
	assert.Contains(t, v.Values, "15000/16000")
	require.NotNil(t, v.DetectionTime)
	assert.Equal(t, 4000, v.CurrentLoad)

	// exactly one start notification on the edge
	assert.Len(t, notifier.started, 1)

	// persisted status reflects the verdict
	assert.True(t, engine.IsDetected())
	assert.Equal(t, StatusDetected, engine.Status().Status)
}

// TestEngine_DetectionTimePreservedWhileConditionPersists tests that the
// original detection timestamp survives further detected ticks.
func TestEngine_DetectionTimePreservedWhileConditionPersists(t *testing.T) {
	engine, _, _ := newTestEngine(t, StaticHealthSource(true))
	metricFile := writeMetricFile(t, iopsNearCeilingCSV)
	ctx := context.Background()
	req := DetectRequest{CurrentLoad: 4000, MetricFile: metricFile}

	engine.Detect(ctx, req)
	engine.Detect(ctx, req)
	first := engine.Detect(ctx, req)
	require.True(t, first.Detected)
	require.NotNil(t, first.DetectionTime)

	second := engine.Detect(ctx, req)
	require.True(t, second.Detected)
	require.NotNil(t, second.DetectionTime)
	assert.True(t, first.DetectionTime.Equal(*second.DetectionTime))
}

// TestEngine_ResourceOnlyOnHealthyNodeIsSuppressed tests the suppression
// path: the same sustained breach on a healthy node never confirms, and the
// reset means the counter starts over every time it reaches the consecutive
// count.
func TestEngine_ResourceOnlyOnHealthyNodeIsSuppressed(t *testing.T) {
	engine, _, notifier := newTestEngine(t, StaticHealthSource(false))
	metricFile := writeMetricFile(t, iopsNearCeilingCSV)
	ctx := context.Background()
	req := DetectRequest{CurrentLoad: 4000, MetricFile: metricFile}

	for i := 0; i < 6; i++ {
		v := engine.Detect(ctx, req)
		assert.False(t, v.Detected, "tick %d", i)
		assert.Equal(t, StatusMonitoring, v.Status)
	}

	// the third and sixth ticks triggered and were reset, so the persisted
	// counter never exceeds the consecutive count
	last := engine.Status()
	assert.Equal(t, 0, last.Counters["EBS_AWS_IOPS"])
	assert.Empty(t, notifier.started)
}

// TestEngine_RPCDegradationConfirmsOnHealthyNode tests that a client-observed
// success-rate collapse confirms the bottleneck even though the node reports
// healthy and no resource dimension breached.
func TestEngine_RPCDegradationConfirmsOnHealthyNode(t *testing.T) {
	engine, _, _ := newTestEngine(t, StaticHealthSource(false))
	metricFile := writeMetricFile(t, quietCSV)

	resultFile := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(resultFile, []byte(
		`{"requests": 1000, "status_codes": {"200": 500, "500": 500}, "latencies": {"mean": 100000000}}`,
	), 0644))

	ctx := context.Background()
	req := DetectRequest{CurrentLoad: 3000, MetricFile: metricFile, ResultFile: resultFile}

	var v *Verdict
	for i := 0; i < 3; i++ {
		v = engine.Detect(ctx, req)
	}
	require.True(t, v.Detected)
	assert.Contains(t, v.Dimensions, "RPC_SUCCESS_RATE")
	assert.Contains(t, v.Values, "50.00%")
	assert.NotContains(t, v.Dimensions, "NODE_UNHEALTHY")
}

// TestEngine_MissingResultArtifactSkipsPassiveChecks tests that a tick
// without a result artifact leaves the RPC counters untouched instead of
// counting a recovery.
func TestEngine_MissingResultArtifactSkipsPassiveChecks(t *testing.T) {
	engine, store, _ := newTestEngine(t, StaticHealthSource(false))
	metricFile := writeMetricFile(t, quietCSV)
	ctx := context.Background()

	resultFile := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(resultFile, []byte(
		`{"requests": 100, "status_codes": {"500": 100}, "latencies": {"mean": 100000000}}`,
	), 0644))

	engine.Detect(ctx, DetectRequest{CurrentLoad: 1000, MetricFile: metricFile, ResultFile: resultFile})
	engine.Detect(ctx, DetectRequest{CurrentLoad: 1000, MetricFile: metricFile})

	bank := LoadCounterBank(store, 3)
	assert.Equal(t, 1, bank.Count("RPC_SUCCESS_RATE"))
}

// TestEngine_NodeFailureWithoutResourceBreach tests the node-failure outcome
// end to end.
func TestEngine_NodeFailureWithoutResourceBreach(t *testing.T) {
	engine, _, _ := newTestEngine(t, StaticHealthSource(true))
	metricFile := writeMetricFile(t, quietCSV)

	v := engine.Detect(context.Background(), DetectRequest{CurrentLoad: 500, MetricFile: metricFile})
	require.True(t, v.Detected)
	assert.Equal(t, []string{"NODE_UNHEALTHY"}, v.Dimensions)
	assert.Equal(t, []string{"out of sync beyond threshold"}, v.Values)
}

// TestEngine_HysteresisSurvivesRestart tests that a fresh engine over the
// same state directory continues the breach run instead of starting over.
func TestEngine_HysteresisSurvivesRestart(t *testing.T) {
	store := newTestStore(t)
	cfg := &config.Config{
		Devices: config.DevicesConfig{
			Primary: config.DeviceConfig{Name: "nvme1n1", BaselineIOPS: 16000},
		},
		Thresholds: config.DefaultThresholds(),
		RPC:        config.RPCConfig{TimeoutSeconds: 1},
	}
	metricFile := writeMetricFile(t, iopsNearCeilingCSV)
	ctx := context.Background()
	req := DetectRequest{CurrentLoad: 4000, MetricFile: metricFile}

	first := NewEngine(cfg, store, StaticHealthSource(true), NewPublisher(store, &recordingNotifier{}, "loadsentry", nil, nil), nil, nil)
	first.Detect(ctx, req)
	first.Detect(ctx, req)

	// simulated restart: new engine, same state dir. Without the persisted
	// counters this tick would confirm a bare node failure; with them the
	// device dimension completes its run and is reported.
	second := NewEngine(cfg, store, StaticHealthSource(true), NewPublisher(store, &recordingNotifier{}, "loadsentry", nil, nil), nil, nil)
	v := second.Detect(ctx, req)
	require.True(t, v.Detected)
	assert.Contains(t, v.Dimensions, "EBS_AWS_IOPS")
}
