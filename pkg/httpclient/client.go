// Package httpclient is the outbound HTTP seam used by the email providers and
// the relay client. Tests swap it for a ClientFunc or an httptest server.
package httpclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	// DefaultTimeout bounds a call when no provider timeout is configured
	DefaultTimeout = 30 * time.Second

	UserAgent = "contact-relay/1.0"
)

// Client sends one HTTP request
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientFunc adapts a function to the Client interface
type ClientFunc func(req *http.Request) (*http.Response, error)

func (f ClientFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// tracingTransport stamps the user agent and carries the active trace to the callee
type tracingTransport struct {
	next http.RoundTripper
}

func (t tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	return t.next.RoundTrip(req)
}

// NewStandardClient returns a client with DefaultTimeout
func NewStandardClient() Client {
	return NewClientWithTimeout(DefaultTimeout)
}

// NewClientWithTimeout returns a client whose requests give up after timeout
func NewClientWithTimeout(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 90 * time.Second

	return &http.Client{
		Timeout:   timeout,
		Transport: tracingTransport{next: transport},
	}
}
