package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"loadsentry/pkg/config"
	"loadsentry/pkg/logger"
)

// WebhookNotifier pushes one-line operator warnings to a chat webhook.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier() *WebhookNotifier {
	// Priority: config file > environment variable
	var webhookURL string
	if config.GlobalConfig != nil && config.GlobalConfig.Notification.WebhookURL != "" {
		webhookURL = config.GlobalConfig.Notification.WebhookURL
	} else {
		webhookURL = os.Getenv("LOADSENTRY_WEBHOOK_URL")
	}

	if webhookURL == "" {
		logger.Debug("operator webhook not configured, warnings go to the log only")
	}

	return &WebhookNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendDimensionWarning sends the warning emitted when a dimension first
// reaches its consecutive threshold.
func (w *WebhookNotifier) SendDimensionWarning(ctx context.Context, dimension, value string, currentLoad int) error {
	if w.webhookURL == "" {
		return nil
	}

	message := map[string]interface{}{
		"text": fmt.Sprintf("[loadsentry] dimension %s triggered at load %d (value %s)", dimension, currentLoad, value),
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
