package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process and the CLI.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Webhook  WebhookConfig
	Auth     AuthConfig
	DB       DBConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
	Tracing  TracingConfig

	// RoutingTablePath optionally points to a YAML group table.
	RoutingTablePath string
}

type AppConfig struct {
	Env  string
	Port int
}

// WebhookConfig describes the external workflow webhook that places calls.
type WebhookConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// StrictSuccess treats a response without a "success" field as a failure.
	StrictSuccess bool
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// DBConfig is optional as a block. An empty Host keeps the audit log in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. An empty Host disables dispatch concurrency caps.
type RedisConfig struct {
	Host string
	Port int
}

type DispatchConfig struct {
	ConcurrencyLimit int
	SlotTTL          time.Duration

	// MaxBatchSize caps how many calls one batch request may carry.
	MaxBatchSize int
}

type TracingConfig struct {
	Endpoint string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Webhook.BaseURL = strings.TrimSpace(os.Getenv("WEBHOOK_BASE_URL"))
	c.Webhook.APIKey = os.Getenv("WEBHOOK_API_KEY")
	{
		d, err := optionalDuration("WEBHOOK_TIMEOUT")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Webhook.Timeout = d
	}
	{
		b, err := optionalBool("WEBHOOK_STRICT_SUCCESS")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Webhook.StrictSuccess = b
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	{
		d, err := optionalDuration("JWT_ACCESS_TTL")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Auth.AccessTokenTTL = d
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Host != "" {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	if v := strings.TrimSpace(os.Getenv("DISPATCH_CONCURRENCY_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("DISPATCH_CONCURRENCY_LIMIT must be an integer, got %q", v))
		}
		c.Dispatch.ConcurrencyLimit = n
	}

	if v := strings.TrimSpace(os.Getenv("DISPATCH_MAX_BATCH")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("DISPATCH_MAX_BATCH must be an integer, got %q", v))
		}
		c.Dispatch.MaxBatchSize = n
	}

	c.RoutingTablePath = strings.TrimSpace(os.Getenv("ROUTING_TABLE_PATH"))
	c.Tracing.Endpoint = strings.TrimSpace(os.Getenv("TRACING_ENDPOINT"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the config and fills in defaults. It uses a pointer
// receiver so defaults stick on the caller's value.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	errs = append(errs, c.validateWebhook()...)

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.HasDB() {
		errs = append(errs, c.validateDB()...)
	}

	if c.HasRedis() && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Dispatch.ConcurrencyLimit < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_CONCURRENCY_LIMIT must be >= 0, got %d", c.Dispatch.ConcurrencyLimit))
	} else if c.Dispatch.ConcurrencyLimit == 0 {
		c.Dispatch.ConcurrencyLimit = 5
	}
	if c.Dispatch.MaxBatchSize < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_BATCH must be >= 0, got %d", c.Dispatch.MaxBatchSize))
	} else if c.Dispatch.MaxBatchSize == 0 {
		c.Dispatch.MaxBatchSize = 10
	}
	if c.Dispatch.SlotTTL <= 0 {
		c.Dispatch.SlotTTL = c.BatchBudget()
	}

	return joinErrors(errs)
}

func (c *Config) validateWebhook() []error {
	var errs []error
	if c.Webhook.BaseURL == "" {
		errs = append(errs, errors.New("WEBHOOK_BASE_URL is required"))
	} else if u, err := url.Parse(c.Webhook.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("WEBHOOK_BASE_URL must be an absolute http(s) URL, got %q", c.Webhook.BaseURL))
	} else if c.IsProduction() && u.Scheme != "https" {
		errs = append(errs, errors.New("WEBHOOK_BASE_URL must use https in production"))
	}
	if c.Webhook.APIKey == "" {
		errs = append(errs, errors.New("WEBHOOK_API_KEY is required"))
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 15 * time.Second
	}
	return errs
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HasDB() bool { return c.DB.Host != "" }

func (c Config) HasRedis() bool { return c.Redis.Host != "" }

// BatchBudget is the worst-case duration of a full batch: one login up
// front, then a login and a call per item, each bounded by the webhook
// timeout, plus a margin for local work.
func (c Config) BatchBudget() time.Duration {
	requests := 1 + 2*c.Dispatch.MaxBatchSize
	return time.Duration(requests)*c.Webhook.Timeout + 30*time.Second
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
