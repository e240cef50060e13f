package publish

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/gr-butler/irlearner/env"
	"github.com/gr-butler/irlearner/store"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

type learnedQuery struct {
	Name      string `url:"name"`
	Protocol  string `url:"protocol"`
	Pulses    int    `url:"pulses"`
	Code      string `url:"code,omitempty"`
	LearnedAt string `url:"learned_at"`
}

// WebhookSink reports each learned command as a GET with a summary in the
// query string. The pulse train itself is not sent, only its length.
type WebhookSink struct {
	baseURL string
	client  *http.Client
}

func NewWebhookSink(baseURL string) *WebhookSink {
	return &WebhookSink{
		baseURL: baseURL,
		client:  &http.Client{Timeout: env.HTTPTimeout},
	}
}

func (w *WebhookSink) String() string {
	return "webhook " + w.baseURL
}

func (w *WebhookSink) Publish(ctx context.Context, cmd store.LearnedCommand) error {
	vals, err := query.Values(learnedQuery{
		Name:      cmd.Name,
		Protocol:  cmd.Protocol.String(),
		Pulses:    len(cmd.Pulses),
		Code:      cmd.Code,
		LearnedAt: cmd.LearnedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode query")
	}

	sep := "?"
	if strings.Contains(w.baseURL, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+sep+vals.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to build webhook request")
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "webhook request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("webhook returned HTTP [%v]", resp.Status)
	}
	logger.Debugf("Webhook accepted [%v]", cmd.Name)
	return nil
}

func (w *WebhookSink) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
