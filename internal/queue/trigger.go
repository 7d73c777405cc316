package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookTrigger POSTs {"postingIds":[...]} to the downstream processor.
type WebhookTrigger struct {
	URL    string
	Secret string
	hc     *http.Client
}

func NewWebhookTrigger(url, secret string, timeout time.Duration) *WebhookTrigger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookTrigger{URL: url, Secret: secret, hc: &http.Client{Timeout: timeout}}
}

type triggerRequest struct {
	PostingIDs []int64 `json:"postingIds"`
}

func (w *WebhookTrigger) Process(ctx context.Context, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	body, err := json.Marshal(triggerRequest{PostingIDs: ids})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("downstream trigger: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+w.Secret)
	}

	res, err := w.hc.Do(req)
	if err != nil {
		return fmt.Errorf("downstream trigger: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode >= 300 {
		return fmt.Errorf("downstream trigger status %d", res.StatusCode)
	}
	return nil
}

// LogTrigger only records the call. Used when no downstream is configured.
type LogTrigger struct{}

func (LogTrigger) Process(_ context.Context, ids []int64) error {
	ev := log.Info().Str("component", "trigger")
	if ids == nil {
		ev.Msg("downstream drain requested (no downstream configured)")
		return nil
	}
	ev.Int("postings", len(ids)).Msg("downstream trigger (no downstream configured)")
	return nil
}
