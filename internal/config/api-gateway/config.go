package api_gateway_config

import (
	"errors"
	"fmt"
	"time"

	authn "github.com/torsoroso16/api-project/internal/auth"
	common "github.com/torsoroso16/api-project/internal/config/common"
	"github.com/torsoroso16/api-project/internal/outbox"
	pg "github.com/torsoroso16/api-project/internal/repository/postgres"
	redisinfra "github.com/torsoroso16/api-project/internal/repository/redis"
	"github.com/torsoroso16/api-project/internal/services/api-gateway/auth"
	"github.com/torsoroso16/api-project/internal/services/scheduler"
)

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type Argon2 struct {
	Memory      uint32 `mapstructure:"memory_kib"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type Auth struct {
	AccessSecret          string        `mapstructure:"access_secret"`
	RefreshSecret         string        `mapstructure:"refresh_secret"`
	AccessTTL             time.Duration `mapstructure:"access_ttl"`
	RefreshTTL            time.Duration `mapstructure:"refresh_ttl"`
	Issuer                string        `mapstructure:"issuer"`
	ResetTTL              time.Duration `mapstructure:"reset_ttl"`
	DefaultRole           string        `mapstructure:"default_role"`
	LoginFailureThreshold int           `mapstructure:"login_failure_threshold"`
	LoginFailureWindow    time.Duration `mapstructure:"login_failure_window"`
	Argon2                Argon2        `mapstructure:"argon2"`
}

type Cookie struct {
	Name   string        `mapstructure:"name"`
	Domain string        `mapstructure:"domain"`
	Path   string        `mapstructure:"path"`
	Secure bool          `mapstructure:"secure"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

type RateLimit struct {
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
	Burst             int           `mapstructure:"burst"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
}

type Kafka struct {
	Brokers       []string `mapstructure:"brokers"`
	EmailTopic    string   `mapstructure:"email_topic"`
	SecurityTopic string   `mapstructure:"security_topic"`
}

type Cleanup struct {
	Enabled             bool `mapstructure:"enabled"`
	scheduler.Intervals `mapstructure:",squash"`
}

type Config struct {
	App       common.App        `mapstructure:"app"`
	Server    Server            `mapstructure:"server"`
	DB        pg.Config         `mapstructure:"db"`
	Redis     redisinfra.Config `mapstructure:"redis"`
	Kafka     Kafka             `mapstructure:"kafka"`
	Outbox    outbox.Config     `mapstructure:"outbox"`
	OTEL      common.OTEL       `mapstructure:"otel"`
	Log       common.Log        `mapstructure:"log"`
	Auth      Auth              `mapstructure:"auth"`
	Cookie    Cookie            `mapstructure:"cookie"`
	RateLimit RateLimit         `mapstructure:"rate_limit"`
	Cleanup   Cleanup           `mapstructure:"cleanup"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }

// Validate fails fast on settings the process cannot run safely without.
func (c *Config) Validate() error {
	var errs []error
	if c.DB.DSN == "" {
		errs = append(errs, ErrConfig("db.dsn is required"))
	}
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		errs = append(errs, ErrConfig("auth.access_secret and auth.refresh_secret are required"))
	} else if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, ErrConfig("auth.access_secret and auth.refresh_secret must differ"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, ErrConfig("auth token ttls must be positive"))
	} else if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		errs = append(errs, ErrConfig(fmt.Sprintf("auth.access_ttl (%s) must be shorter than auth.refresh_ttl (%s)", c.Auth.AccessTTL, c.Auth.RefreshTTL)))
	}
	if c.Auth.DefaultRole == "" {
		errs = append(errs, ErrConfig("auth.default_role is required"))
	}
	if _, err := auth.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		errs = append(errs, ErrConfig("rate_limit.trusted_proxies: "+err.Error()))
	}
	return errors.Join(errs...)
}

func (c *Config) HasherParams() authn.Params {
	a := c.Auth.Argon2
	return authn.Params{
		Memory:      a.Memory,
		Iterations:  a.Iterations,
		Parallelism: a.Parallelism,
		SaltLength:  a.SaltLength,
		KeyLength:   a.KeyLength,
	}
}

func (c *Config) CodecConfig() authn.CodecConfig {
	return authn.CodecConfig{
		AccessSecret:  []byte(c.Auth.AccessSecret),
		RefreshSecret: []byte(c.Auth.RefreshSecret),
		AccessTTL:     c.Auth.AccessTTL,
		RefreshTTL:    c.Auth.RefreshTTL,
		Issuer:        c.Auth.Issuer,
	}
}

func (c *Config) EngineConfig() auth.Config {
	return auth.Config{
		ResetTTL:              c.Auth.ResetTTL,
		DefaultRole:           c.Auth.DefaultRole,
		LoginFailureThreshold: c.Auth.LoginFailureThreshold,
		LoginFailureWindow:    c.Auth.LoginFailureWindow,
	}
}

func (c *Config) CookieOpts() auth.CookieOpts {
	return auth.CookieOpts{
		Name:   c.Cookie.Name,
		Domain: c.Cookie.Domain,
		Path:   c.Cookie.Path,
		Secure: c.Cookie.Secure,
		MaxAge: c.Cookie.MaxAge,
	}
}

func (c *Config) RateLimitConfig() auth.RateLimitConfig {
	return auth.RateLimitConfig{
		RequestsPerWindow: c.RateLimit.RequestsPerWindow,
		Window:            c.RateLimit.Window,
		Burst:             c.RateLimit.Burst,
		TrustedProxies:    append([]string(nil), c.RateLimit.TrustedProxies...),
	}
}
