package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Rate-limit store backends
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Email providers
const (
	ProviderEmailJS = "emailjs"
	ProviderSMTP    = "smtp"
)

// Config holds all relay configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Provider      ProviderConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AppEnv         string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	WorkOffline bool
}

type RedisConfig struct {
	URL string
}

type RateLimitConfig struct {
	Store          string
	MaxSubmissions int
	Window         time.Duration
	PurgeInterval  time.Duration
}

// ProviderConfig holds the email delivery provider secrets.
// The relay reads them once at startup; a missing value is reported per request,
// not at boot, so the service stays up and answers with a configuration error.
type ProviderConfig struct {
	Name    string
	Timeout time.Duration
	EmailJS EmailJSConfig
	SMTP    SMTPConfig
}

type EmailJSConfig struct {
	APIURL     string
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string // Optional access token for strict mode accounts
}

type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
	To       string
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type ObservabilityConfig struct {
	ExporterEndpoint  string
	TraceSampleRatio  float64
	ServiceName       string
	ServiceNamespace  string
	ServiceVersion    string
	ServiceInstanceID string
}

type ProfilingConfig struct {
	Enabled               bool
	Endpoint              string
	AppName               string
	SampleTypes           string
	UploadIntervalSeconds int
}

// ClientConfig is the configuration of the contact form client (cmd/contact).
type ClientConfig struct {
	Provider ProviderConfig
	Client   FormConfig
	Logging  LoggingConfig
	AppEnv   string
}

type FormConfig struct {
	StatePath      string
	RelayURL       string
	MaxSubmissions int
	Window         time.Duration
}

// defaults apply to both the relay and the contact client
var defaults = map[string]any{
	"PORT":                                  "8080",
	"GIN_MODE":                              "release",
	"APP_ENV":                               "production",
	"ALLOWED_CORS_ORIGINS":                  "",
	"LOG_LEVEL":                             "info",
	"LOG_DIR":                               "",
	"DB_MAX_CONNS":                          10,
	"DB_MIN_CONNS":                          1,
	"RATE_LIMIT_STORE":                      StorePostgres,
	"RATE_LIMIT_MAX":                        3,
	"RATE_LIMIT_WINDOW":                     time.Hour,
	"RATE_LIMIT_PURGE_INTERVAL":             10 * time.Minute,
	"EMAIL_PROVIDER":                        ProviderEmailJS,
	"EMAILJS_API_URL":                       "https://api.emailjs.com/api/v1.0/email/send",
	"PROVIDER_TIMEOUT":                      15 * time.Second,
	"CONTACT_STATE_PATH":                    "contact_state.db",
	"O11Y_EXPORTER_ENDPOINT":                "",
	"O11Y_TRACE_SAMPLE_RATIO":               1.0,
	"O11Y_BE_SERVICE_NAME":                  "contact-relay",
	"O11Y_SERVICE_NAMESPACE":                "portfolio",
	"O11Y_BE_SERVICE_VERSION":               "1.0.0",
	"O11Y_PROFILING_ENABLED":                false,
	"O11Y_PROFILING_APP_NAME":               "contact-relay",
	"O11Y_PROFILING_SAMPLE_TYPES":           "cpu,alloc_space,goroutines",
	"O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS": 15,
}

// newViper layers environment variables over an optional .env file over defaults
func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // .env is optional

	return v
}

func providerFrom(v *viper.Viper) ProviderConfig {
	return ProviderConfig{
		Name:    strings.ToLower(strings.TrimSpace(v.GetString("EMAIL_PROVIDER"))),
		Timeout: v.GetDuration("PROVIDER_TIMEOUT"),
		EmailJS: EmailJSConfig{
			APIURL:     v.GetString("EMAILJS_API_URL"),
			ServiceID:  strings.TrimSpace(v.GetString("EMAILJS_SERVICE_ID")),
			TemplateID: strings.TrimSpace(v.GetString("EMAILJS_TEMPLATE_ID")),
			PublicKey:  strings.TrimSpace(v.GetString("EMAILJS_PUBLIC_KEY")),
			PrivateKey: strings.TrimSpace(v.GetString("EMAILJS_PRIVATE_KEY")),
		},
		SMTP: SMTPConfig{
			Addr:     v.GetString("SMTP_ADDR"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
			To:       v.GetString("SMTP_TO"),
		},
	}
}

func splitOrigins(raw string) []string {
	origins := []string{}
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// Load reads relay configuration from environment variables
func Load() (*Config, error) {
	v := newViper()

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AppEnv:         v.GetString("APP_ENV"),
			AllowedOrigins: splitOrigins(v.GetString("ALLOWED_CORS_ORIGINS")),
		},
		Database: DatabaseConfig{
			URL:         v.GetString("DATABASE_URL"),
			MaxConns:    v.GetInt32("DB_MAX_CONNS"),
			MinConns:    v.GetInt32("DB_MIN_CONNS"),
			WorkOffline: v.GetBool("DB_WORK_OFFLINE"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		RateLimit: RateLimitConfig{
			Store:          strings.ToLower(strings.TrimSpace(v.GetString("RATE_LIMIT_STORE"))),
			MaxSubmissions: v.GetInt("RATE_LIMIT_MAX"),
			Window:         v.GetDuration("RATE_LIMIT_WINDOW"),
			PurgeInterval:  v.GetDuration("RATE_LIMIT_PURGE_INTERVAL"),
		},
		Provider: providerFrom(v),
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Observability: ObservabilityConfig{
			ExporterEndpoint:  v.GetString("O11Y_EXPORTER_ENDPOINT"),
			TraceSampleRatio:  v.GetFloat64("O11Y_TRACE_SAMPLE_RATIO"),
			ServiceName:       v.GetString("O11Y_BE_SERVICE_NAME"),
			ServiceNamespace:  v.GetString("O11Y_SERVICE_NAMESPACE"),
			ServiceVersion:    v.GetString("O11Y_BE_SERVICE_VERSION"),
			ServiceInstanceID: v.GetString("SERVICE_INSTANCE_ID"),
		},
		Profiling: ProfilingConfig{
			Enabled:               v.GetBool("O11Y_PROFILING_ENABLED"),
			Endpoint:              v.GetString("O11Y_PROFILING_ENDPOINT"),
			AppName:               v.GetString("O11Y_PROFILING_APP_NAME"),
			SampleTypes:           v.GetString("O11Y_PROFILING_SAMPLE_TYPES"),
			UploadIntervalSeconds: v.GetInt("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS"),
		},
	}

	// Offline mode always uses the in-process store
	if cfg.Database.WorkOffline {
		cfg.RateLimit.Store = StoreMemory
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient reads the contact form client configuration
func LoadClient() (*ClientConfig, error) {
	v := newViper()

	cfg := &ClientConfig{
		Provider: providerFrom(v),
		Client: FormConfig{
			StatePath:      v.GetString("CONTACT_STATE_PATH"),
			RelayURL:       strings.TrimSpace(v.GetString("CONTACT_RELAY_URL")),
			MaxSubmissions: v.GetInt("RATE_LIMIT_MAX"),
			Window:         v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		AppEnv: v.GetString("APP_ENV"),
	}

	if cfg.Client.StatePath == "" {
		return nil, errors.New("CONTACT_STATE_PATH is required")
	}
	if err := cfg.Client.validateLimits(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
// Provider secrets are not checked here; they are reported per request.
func (c *Config) Validate() error {
	var problems []error

	if c.Server.Port == "" {
		problems = append(problems, errors.New("PORT is required"))
	}

	switch c.RateLimit.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			problems = append(problems, errors.New("DATABASE_URL is required when RATE_LIMIT_STORE=postgres"))
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			problems = append(problems, errors.New("REDIS_URL is required when RATE_LIMIT_STORE=redis"))
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Errorf("unsupported RATE_LIMIT_STORE: %q", c.RateLimit.Store))
	}

	problems = append(problems, checkLimits(c.RateLimit.MaxSubmissions, c.RateLimit.Window)...)

	if c.Provider.Name != ProviderEmailJS && c.Provider.Name != ProviderSMTP {
		problems = append(problems, fmt.Errorf("unsupported EMAIL_PROVIDER: %q", c.Provider.Name))
	}

	if r := c.Observability.TraceSampleRatio; r < 0 || r > 1 {
		problems = append(problems, fmt.Errorf("O11Y_TRACE_SAMPLE_RATIO must be within [0, 1], got %v", r))
	}

	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		problems = append(problems, errors.New("O11Y_PROFILING_ENDPOINT is required when profiling is enabled"))
	}

	return errors.Join(problems...)
}

func (f FormConfig) validateLimits() error {
	return errors.Join(checkLimits(f.MaxSubmissions, f.Window)...)
}

func checkLimits(limit int, window time.Duration) []error {
	var problems []error
	if limit <= 0 {
		problems = append(problems, errors.New("RATE_LIMIT_MAX must be positive"))
	}
	if window <= 0 {
		problems = append(problems, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	return problems
}

// IsConfigured reports whether every secret the selected provider needs is present
func (p ProviderConfig) IsConfigured() bool {
	switch p.Name {
	case ProviderSMTP:
		return p.SMTP.Addr != "" && p.SMTP.From != "" && p.SMTP.To != ""
	default:
		return p.EmailJS.ServiceID != "" && p.EmailJS.TemplateID != "" && p.EmailJS.PublicKey != ""
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.GinMode == "debug"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}
