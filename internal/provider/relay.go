package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/folio/contact-relay/internal/models"
	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/folio/contact-relay/pkg/httpclient"
	"github.com/folio/contact-relay/pkg/logger"
	"github.com/folio/contact-relay/pkg/metrics"
)

const relayProviderName = "relay"

// RelayProvider hands submissions to the contact relay service instead of
// calling an email provider directly, so no secrets live on the client.
type RelayProvider struct {
	url        string
	httpClient httpclient.Client
}

func NewRelay(url string, httpClient httpclient.Client) *RelayProvider {
	return &RelayProvider{url: strings.TrimSpace(url), httpClient: httpClient}
}

func (p *RelayProvider) Name() string {
	return relayProviderName
}

func (p *RelayProvider) Configured() bool {
	return p.url != ""
}

func (p *RelayProvider) Send(ctx context.Context, params models.TemplateParams) error {
	if !p.Configured() {
		return apperrors.NotConfiguredError("relay url")
	}

	start := time.Now()
	status := "success"
	defer func() {
		logger.LogAPICall(relayProviderName, "send", status, metrics.ObserveProvider(relayProviderName, status, start))
	}()

	body, err := json.Marshal(models.SubmissionRequest{
		Name:    params.FromName,
		Email:   params.ReplyTo,
		Subject: params.Subject,
		Message: params.Message,
	})
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to reach contact relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}

	status = "error"
	var envelope models.RelayErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 16<<10)).Decode(&envelope) //nolint:errcheck // fall back to status text below

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		status = "rate_limited"
		seconds := envelope.RetryAfterSeconds
		if seconds == 0 {
			seconds, _ = strconv.Atoi(resp.Header.Get("Retry-After")) //nolint:errcheck // zero wait when absent
		}
		return apperrors.RateLimited(time.Duration(seconds) * time.Second)
	case http.StatusBadRequest:
		return apperrors.InvalidInputError("submission", firstNonEmpty(envelope.Message, envelope.Error, "rejected by relay"))
	}

	return &apperrors.ProviderError{
		Provider:   relayProviderName,
		StatusCode: resp.StatusCode,
		Message:    firstNonEmpty(envelope.Message, envelope.Error, fmt.Sprintf("contact relay returned status %d", resp.StatusCode)),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
