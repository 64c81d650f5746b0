package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initFromYAML(t *testing.T, content string) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CONFIG_PATH", path)
	return Init()
}

// TestInit_MinimalConfigGetsDefaults tests that a config with only the
// mandatory device name is filled with working defaults.
func TestInit_MinimalConfigGetsDefaults(t *testing.T) {
	err := initFromYAML(t, `
devices:
  primary:
    name: nvme1n1
`)
	require.NoError(t, err)

	cfg := GlobalConfig
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "/tmp/loadsentry", cfg.State.Dir)
	assert.Equal(t, 3, cfg.Thresholds.ConsecutiveCount)
	assert.Equal(t, 90.0, cfg.Thresholds.AWSBaselinePct)
	assert.Equal(t, 95.0, cfg.Thresholds.RPCSuccessRatePct)
	assert.Equal(t, "eth_blockNumber", cfg.RPC.Method)
	assert.Equal(t, 3, cfg.RPC.TimeoutSeconds)
	assert.Equal(t, 10, cfg.Watch.IntervalSeconds)
	assert.Equal(t, "loadsentry", cfg.Events.Source)
	assert.Nil(t, cfg.Devices.Secondary)
}

// TestInit_MissingPrimaryDeviceFails tests that the engine refuses to run
// without a monitored device.
func TestInit_MissingPrimaryDeviceFails(t *testing.T) {
	err := initFromYAML(t, `
server:
  port: 9000
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "devices.primary.name")
}

// TestInit_ExplicitValuesAreKept tests that configured values are not
// overridden by defaults.
func TestInit_ExplicitValuesAreKept(t *testing.T) {
	err := initFromYAML(t, `
server:
  port: 9999
devices:
  primary:
    name: nvme1n1
    baseline_iops: 16000
    baseline_throughput_mibs: 1000
  secondary:
    name: nvme2n1
    baseline_iops: 3000
thresholds:
  consecutive_count: 5
  aws_baseline_pct: 80
rpc:
  endpoint: http://127.0.0.1:8545
  timeout_seconds: 7
`)
	require.NoError(t, err)

	cfg := GlobalConfig
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Thresholds.ConsecutiveCount)
	assert.Equal(t, 80.0, cfg.Thresholds.AWSBaselinePct)
	assert.Equal(t, 16000.0, cfg.Devices.Primary.BaselineIOPS)
	require.NotNil(t, cfg.Devices.Secondary)
	assert.Equal(t, "nvme2n1", cfg.Devices.Secondary.Name)
	assert.Equal(t, 7, cfg.RPC.TimeoutSeconds)
}

// TestInit_NamelessSecondaryIsDropped tests that a secondary block without a
// device name is treated as absent.
func TestInit_NamelessSecondaryIsDropped(t *testing.T) {
	err := initFromYAML(t, `
devices:
  primary:
    name: nvme1n1
  secondary:
    baseline_iops: 3000
`)
	require.NoError(t, err)
	assert.Nil(t, GlobalConfig.Devices.Secondary)
}

// TestInit_RedisDefaults tests that enabling the mirror fills in the key and
// channel names.
func TestInit_RedisDefaults(t *testing.T) {
	err := initFromYAML(t, `
devices:
  primary:
    name: nvme1n1
redis:
  enabled: true
  addr: 127.0.0.1:6379
`)
	require.NoError(t, err)
	assert.Equal(t, "loadsentry:verdict", GlobalConfig.Redis.VerdictKey)
	assert.Equal(t, "loadsentry:verdicts", GlobalConfig.Redis.Channel)
}

// TestInit_MissingFileFails tests the missing-config error path.
func TestInit_MissingFileFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, Init())
}
