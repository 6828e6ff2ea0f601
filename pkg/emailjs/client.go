// Package emailjs talks to the EmailJS REST send endpoint.
package emailjs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/folio/contact-relay/pkg/httpclient"
	"github.com/folio/contact-relay/pkg/logger"
	"github.com/folio/contact-relay/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// ProviderName labels metrics and errors coming from this client
	ProviderName = "emailjs"

	DefaultAPIURL = "https://api.emailjs.com/api/v1.0/email/send"

	// maxErrorBody caps how much of a failed response is kept as the error message
	maxErrorBody = 4 << 10
)

// Credentials identify the EmailJS service and template to send through
type Credentials struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string
}

// Complete reports whether the mandatory identifiers are all set
func (c Credentials) Complete() bool {
	return c.ServiceID != "" && c.TemplateID != "" && c.PublicKey != ""
}

type sendRequest struct {
	ServiceID      string `json:"service_id"`
	TemplateID     string `json:"template_id"`
	UserID         string `json:"user_id"`
	AccessToken    string `json:"accessToken,omitempty"`
	TemplateParams any    `json:"template_params"`
}

// Client sends templated emails through EmailJS
type Client struct {
	apiURL      string
	credentials Credentials
	httpClient  httpclient.Client
}

// NewClient creates a new EmailJS client
func NewClient(apiURL string, credentials Credentials, httpClient httpclient.Client) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		apiURL:      apiURL,
		credentials: credentials,
		httpClient:  httpClient,
	}
}

// Configured reports whether the client has everything it needs to send
func (c *Client) Configured() bool {
	return c.credentials.Complete()
}

// Send posts one email with the given template parameters.
// A non-2xx answer becomes a *errors.ProviderError carrying the response text.
func (c *Client) Send(ctx context.Context, params any) error {
	if !c.Configured() {
		return apperrors.NotConfiguredError("emailjs credentials")
	}

	start := time.Now()
	status := "success"
	defer func() {
		logger.LogAPICall(ProviderName, "send", status, metrics.ObserveProvider(ProviderName, status, start))
	}()

	body, err := json.Marshal(sendRequest{
		ServiceID:      c.credentials.ServiceID,
		TemplateID:     c.credentials.TemplateID,
		UserID:         c.credentials.PublicKey,
		AccessToken:    c.credentials.PrivateKey,
		TemplateParams: params,
	})
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to encode emailjs request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to build emailjs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to reach emailjs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}

	status = "error"
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort error text
	message := strings.TrimSpace(string(raw))
	if message == "" {
		message = fmt.Sprintf("emailjs returned status %d", resp.StatusCode)
	}

	logger.Warn("EmailJS rejected send",
		zap.Int("status_code", resp.StatusCode),
		zap.String("response", message))

	return &apperrors.ProviderError{
		Provider:   ProviderName,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}
