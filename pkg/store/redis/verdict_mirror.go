package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// VerdictMirror mirrors every published verdict into redis so the load-ramp
// controller can poll the key or subscribe to the channel instead of reading
// the status file over the wire.
type VerdictMirror struct {
	client  *redis.Client
	key     string
	channel string
}

// NewVerdictMirror creates the mirror.
func NewVerdictMirror(client *redis.Client, key, channel string) *VerdictMirror {
	return &VerdictMirror{client: client, key: key, channel: channel}
}

// Publish stores the verdict document and announces it on the channel.
func (m *VerdictMirror) Publish(ctx context.Context, verdict []byte) error {
	if err := m.client.Set(ctx, m.key, verdict, 0).Err(); err != nil {
		return fmt.Errorf("failed to mirror verdict: %w", err)
	}
	if m.channel != "" {
		if err := m.client.Publish(ctx, m.channel, verdict).Err(); err != nil {
			return fmt.Errorf("failed to announce verdict: %w", err)
		}
	}
	return nil
}

// Last returns the mirrored verdict document, or nil when none exists.
func (m *VerdictMirror) Last(ctx context.Context) ([]byte, error) {
	data, err := m.client.Get(ctx, m.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirrored verdict: %w", err)
	}
	return data, nil
}
