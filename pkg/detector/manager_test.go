package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"loadsentry/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, metricFile, resultDir string) (*Manager, *Publisher) {
	t.Helper()
	store := newTestStore(t)

	cfg := &config.Config{
		Devices: config.DevicesConfig{
			Primary: config.DeviceConfig{Name: "nvme1n1", BaselineIOPS: 16000},
		},
		Thresholds: config.DefaultThresholds(),
		RPC:        config.RPCConfig{TimeoutSeconds: 1},
		Watch: config.WatchConfig{
			MetricFile:      metricFile,
			ResultDir:       resultDir,
			IntervalSeconds: 60, // long enough that only explicit triggers tick
		},
	}

	publisher := NewPublisher(store, &recordingNotifier{}, "loadsentry", nil, nil)
	engine := NewEngine(cfg, store, StaticHealthSource(false), publisher, nil, nil)
	return NewManager(cfg, engine), publisher
}

// TestManager_StartStopLifecycle tests the running guard in both directions.
func TestManager_StartStopLifecycle(t *testing.T) {
	manager, _ := newTestManager(t, writeMetricFile(t, quietCSV), "")
	ctx := context.Background()

	require.NoError(t, manager.Start(ctx))
	assert.Error(t, manager.Start(ctx), "second start must be rejected")

	require.NoError(t, manager.Stop())
	assert.Error(t, manager.Stop(), "second stop must be rejected")
}

// TestManager_SetLoadTriggersImmediateTick tests that a load update from the
// controller runs a tick right away instead of waiting out the interval.
func TestManager_SetLoadTriggersImmediateTick(t *testing.T) {
	manager, publisher := newTestManager(t, writeMetricFile(t, quietCSV), "")

	verdicts := make(chan *Verdict, 4)
	publisher.Subscribe(func(v *Verdict) { verdicts <- v })

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	manager.SetLoad(1234)

	select {
	case v := <-verdicts:
		assert.Equal(t, 1234, v.CurrentLoad)
		assert.Equal(t, 1234, manager.CurrentLoad())
		assert.False(t, manager.LastRunTime().IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("no tick ran after SetLoad")
	}
}

// TestManager_RecordLoadDoesNotTick tests the caller-runs-the-tick path: a
// request that records the load and invokes the engine itself must advance a
// breaching counter exactly once, with no second tick from the control loop
// over the same sample.
func TestManager_RecordLoadDoesNotTick(t *testing.T) {
	store := newTestStore(t)
	metricFile := writeMetricFile(t, iopsNearCeilingCSV)

	cfg := &config.Config{
		Devices: config.DevicesConfig{
			Primary: config.DeviceConfig{Name: "nvme1n1", BaselineIOPS: 16000},
		},
		Thresholds: config.DefaultThresholds(),
		RPC:        config.RPCConfig{TimeoutSeconds: 1},
		Watch: config.WatchConfig{
			MetricFile:      metricFile,
			IntervalSeconds: 3600,
		},
	}
	publisher := NewPublisher(store, &recordingNotifier{}, "loadsentry", nil, nil)
	engine := NewEngine(cfg, store, StaticHealthSource(false), publisher, nil, nil)
	manager := NewManager(cfg, engine)

	ticks := make(chan *Verdict, 4)
	publisher.Subscribe(func(v *Verdict) { ticks <- v })

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	manager.RecordLoad(4000)
	engine.Detect(context.Background(), DetectRequest{CurrentLoad: 4000, MetricFile: metricFile})

	<-ticks // the caller's own tick
	select {
	case <-ticks:
		t.Fatal("control loop ran a second tick over the same sample")
	case <-time.After(300 * time.Millisecond):
	}

	assert.Equal(t, 4000, manager.CurrentLoad())
	assert.Equal(t, 1, LoadCounterBank(store, 3).Count("EBS_AWS_IOPS"))
}

// TestManager_LatestResultFile tests that the newest result artifact wins.
func TestManager_LatestResultFile(t *testing.T) {
	resultDir := t.TempDir()
	manager, _ := newTestManager(t, writeMetricFile(t, quietCSV), resultDir)

	older := filepath.Join(resultDir, "step_001.json")
	newer := filepath.Join(resultDir, "step_002.json")
	require.NoError(t, os.WriteFile(older, []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(newer, []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(resultDir, "notes.txt"), []byte("x"), 0644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	assert.Equal(t, newer, manager.latestResultFile())
}

// TestManager_LatestResultFile_Empty tests the no-artifact cases.
func TestManager_LatestResultFile_Empty(t *testing.T) {
	manager, _ := newTestManager(t, writeMetricFile(t, quietCSV), t.TempDir())
	assert.Empty(t, manager.latestResultFile())

	manager, _ = newTestManager(t, writeMetricFile(t, quietCSV), "")
	assert.Empty(t, manager.latestResultFile())
}

// TestManager_ResultWatcherTriggersTick tests that dropping an artifact into
// the watched directory runs a tick.
func TestManager_ResultWatcherTriggersTick(t *testing.T) {
	resultDir := t.TempDir()
	manager, publisher := newTestManager(t, writeMetricFile(t, quietCSV), resultDir)

	verdicts := make(chan *Verdict, 4)
	publisher.Subscribe(func(v *Verdict) { verdicts <- v })

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(resultDir, "step_001.json"), []byte(
		`{"requests": 10, "status_codes": {"200": 10}, "latencies": {"mean": 1000000}}`,
	), 0644))

	select {
	case <-verdicts:
		// the artifact write was observed and a tick ran
	case <-time.After(5 * time.Second):
		t.Fatal("no tick ran after a result artifact appeared")
	}
}
