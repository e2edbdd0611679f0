// Package webhook posts plain text notifications to a Discord style webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Notifier struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

type message struct {
	Content string `json:"content"`
}

func NewNotifier(url string, hc *http.Client, l *zap.Logger) *Notifier {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Notifier{
		url:        url,
		httpClient: hc,
		logger:     l,
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Notify sends msg. Without a configured url it does nothing.
func (n *Notifier) Notify(ctx context.Context, msg string) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(&message{Content: msg})
	if err != nil {
		return errors.Wrap(err, "failed to encode webhook message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Sugar().Errorw("Failed to send webhook notification", zap.Error(err))
		return errors.Wrap(err, "failed to send webhook notification")
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		n.logger.Sugar().Errorw("Webhook notification rejected", zap.Int("status", res.StatusCode))
		return fmt.Errorf("webhook responded with status %d", res.StatusCode)
	}

	n.logger.Sugar().Infow("Sent webhook notification")
	return nil
}
