package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"loadsentry/internal/model"
	"loadsentry/pkg/config"
	"loadsentry/pkg/logger"
)

// RPCProbe performs an active liveness call against the node's RPC endpoint.
// Only transport-level failure counts: a reachable endpoint returning an HTTP
// error status is still alive, and a timeout degrades to "counted as a
// failure" instead of blocking the tick.
type RPCProbe struct {
	endpoint string
	method   string
	client   *http.Client
}

// NewRPCProbe creates the probe.
func NewRPCProbe(cfg config.RPCConfig) *RPCProbe {
	return &RPCProbe{
		endpoint: cfg.Endpoint,
		method:   cfg.Method,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Check issues the liveness call. A nil error means the endpoint answered at
// the transport level.
func (p *RPCProbe) Check(ctx context.Context) error {
	if p.endpoint == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  p.method,
		"params":  []interface{}{},
		"id":      1,
	})
	if err != nil {
		return fmt.Errorf("failed to build probe payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ReadLoadResult parses the most recent load-test result artifact. ok is
// false when no artifact exists yet; the passive check is skipped for that
// tick without error.
func ReadLoadResult(path string) (*model.LoadResult, bool) {
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debugf("load result unreadable (%s): %v", path, err)
		}
		return nil, false
	}

	var result model.LoadResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Debugf("load result malformed (%s): %v", path, err)
		return nil, false
	}
	return &result, true
}
