package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"casework/internal/config"
	"casework/internal/notifyqueue"
	"casework/internal/services"
)

const userAgent = "Casework-Go/0.1.0"

// Provider delivers one notification over its channel. Errors are tagged
// transient or permanent through the services sentinels; anything untagged
// is treated as transient by the retry policy.
type Provider interface {
	Send(ctx context.Context, entry *notifyqueue.Entry) error
}

// NewProvider builds the channel provider from configuration. Without an
// endpoint a noop provider is returned, which accepts every send.
func NewProvider(cfg *config.Config) Provider {
	endpoint := strings.TrimSpace(cfg.Provider.Endpoint)
	if endpoint == "" {
		return NoopProvider{}
	}

	timeout := time.Duration(cfg.Provider.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(cfg.Provider.AuthToken),
		client:    &http.Client{Timeout: timeout},
	}
}

// HTTPProvider posts deliveries to an external gateway that fans out to the
// actual email/SMS transports.
type HTTPProvider struct {
	endpoint  string
	authToken string
	client    *http.Client
}

type sendRequest struct {
	SignalEventID string   `json:"signalEventId"`
	HookID        string   `json:"hookId"`
	Channel       string   `json:"channel"`
	To            []string `json:"to"`
	CC            []string `json:"cc,omitempty"`
}

func (p *HTTPProvider) Send(ctx context.Context, entry *notifyqueue.Entry) error {
	body, err := json.Marshal(sendRequest{
		SignalEventID: entry.SignalEventID,
		HookID:        entry.HookID,
		Channel:       entry.Channel,
		To:            entry.ToRecipients,
		CC:            entry.CCRecipients,
	})
	if err != nil {
		return services.Wrap(services.ErrPermanent, "dispatch", "send", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrPermanent, "dispatch", "send", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Timeouts and connection failures are worth retrying.
		return services.Wrap(services.ErrTransient, "dispatch", "send", "provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	message := fmt.Sprintf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	return services.Wrap(classifyStatus(resp.StatusCode), "dispatch", "send", message, nil)
}

// classifyStatus maps provider HTTP statuses onto the delivery taxonomy:
// rate limits, timeouts, and server faults retry; other client errors mean
// the request itself is bad and will never succeed.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return services.ErrTransient
	case status >= 500:
		return services.ErrTransient
	default:
		return services.ErrPermanent
	}
}

// NoopProvider accepts every delivery without side effects.
type NoopProvider struct{}

func (NoopProvider) Send(context.Context, *notifyqueue.Entry) error { return nil }
