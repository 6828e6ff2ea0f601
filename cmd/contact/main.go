// Command contact submits one message through the contact form pipeline:
// local validation, the local submission limiter and then either the relay or
// a provider called directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/internal/dispatcher"
	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/internal/provider"
	"github.com/folio/contact-relay/internal/ratelimit"
	"github.com/folio/contact-relay/pkg/httpclient"
	"github.com/folio/contact-relay/pkg/localstore"
	"github.com/folio/contact-relay/pkg/logger"
)

const (
	exitOK          = 0
	exitFailed      = 1
	exitInvalid     = 2
	exitRateLimited = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// A missing .env is fine; real environment variables win
	_ = godotenv.Load() //nolint:errcheck

	fs := flag.NewFlagSet("contact", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var req models.SubmissionRequest
	fs.StringVar(&req.Name, "name", "", "sender name")
	fs.StringVar(&req.Email, "email", "", "sender email address")
	fs.StringVar(&req.Subject, "subject", "", "message subject")
	fs.StringVar(&req.Message, "message", "", "message body (use - to read stdin)")
	if err := fs.Parse(args); err != nil {
		return exitInvalid
	}

	if req.Message == "-" {
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to read message: %v\n", err)
			return exitFailed
		}
		req.Message = string(body)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailed
	}

	if err := logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.AppEnv,
		ServiceName: "contact-cli",
	}); err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return exitFailed
	}
	defer logger.Sync()

	store, err := localstore.NewSQLiteStore(cfg.Client.StatePath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open local state: %v\n", err)
		return exitFailed
	}
	defer store.Close()

	sender, err := newSender(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize provider: %v\n", err)
		return exitFailed
	}

	limiter := ratelimit.NewWindowLimiter(store, cfg.Client.MaxSubmissions, cfg.Client.Window)
	d := dispatcher.New(limiter, sender,
		dispatcher.WithTimeout(cfg.Provider.Timeout),
		dispatcher.WithNotifier(func(n dispatcher.Notification) {
			fmt.Fprintf(stdout, "[%s] %s %s\n", n.Kind, n.Title, n.Message)
		}),
	)
	d.SetFields(req)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return report(d.Submit(ctx), stderr)
}

// newSender posts to the relay when CONTACT_RELAY_URL is set, otherwise calls the provider directly
func newSender(cfg *config.ClientConfig) (provider.Provider, error) {
	client := httpclient.NewClientWithTimeout(cfg.Provider.Timeout)
	if cfg.Client.RelayURL != "" {
		logger.Debug("Sending through contact relay", zap.String("url", cfg.Client.RelayURL))
		return provider.WithCircuitBreaker(provider.NewRelay(cfg.Client.RelayURL, client)), nil
	}
	return provider.New(cfg.Provider, client)
}

func report(out models.SubmissionOutcome, stderr io.Writer) int {
	switch out.Status {
	case models.StatusSuccess:
		return exitOK
	case models.StatusRateLimited:
		return exitRateLimited
	case models.StatusError:
		if len(out.FieldErrors) > 0 {
			for _, fe := range out.FieldErrors {
				fmt.Fprintf(stderr, "  %s: %s\n", fe.Field, fe.Message)
			}
			return exitInvalid
		}
		return exitFailed
	default:
		// Interrupted before the provider answered
		fmt.Fprintln(stderr, "Submission cancelled")
		return exitFailed
	}
}
