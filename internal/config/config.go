package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr   = ":3000"
	DefaultSiteName     = "koauth"
	DefaultCookieMaxAge = 7 * 24 * time.Hour
)

var (
	ErrMissingBaseURL  = errors.New("baseURL is required")
	ErrMissingDatabase = errors.New("either mysql.dsn or sqlite.path is required")
)

type MySQLConfig struct {
	Dsn             string        `mapstructure:"dsn"`
	Replicas        []string      `mapstructure:"replicas"`
	TablePrefix     string        `mapstructure:"tablePrefix"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type SessionConfig struct {
	Backend        string        `mapstructure:"backend"` // redis or memory
	SessionMaxAge  time.Duration `mapstructure:"sessionMaxAge"`
	CookieName     string        `mapstructure:"cookieName"`
	CookieHttpOnly bool          `mapstructure:"cookieHttpOnly"`
	CookieSecure   bool          `mapstructure:"cookieSecure"`
}

type OAuthProviderConfig struct {
	ClientID     string `mapstructure:"clientID"`
	ClientSecret string `mapstructure:"clientSecret"`
}

// OAuthServerConfig tunes the authorization server itself.
type OAuthServerConfig struct {
	Issuer         string            `mapstructure:"issuer"`
	FallbackSecret string            `mapstructure:"fallbackSecret"`
	TrustedDomains []string          `mapstructure:"trustedDomains"`
	Scopes         map[string]string `mapstructure:"scopes"`
	SweepInterval  time.Duration     `mapstructure:"sweepInterval"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type TurnstileConfig struct {
	SiteKey   string `mapstructure:"siteKey"`
	SecretKey string `mapstructure:"secretKey"`
}

type CaptchaConfig struct {
	Provider  string          `mapstructure:"provider"`
	Turnstile TurnstileConfig `mapstructure:"turnstile,omitempty"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type Config struct {
	Debug         bool              `mapstructure:"debug"`
	SiteName      string            `mapstructure:"siteName"`
	BaseURL       string            `mapstructure:"baseURL"`
	ListenAddr    string            `mapstructure:"listenAddr"`
	StaticDir     string            `mapstructure:"staticDir"`
	TemplateDir   string            `mapstructure:"templateDir"`
	AllowOrigins  []string          `mapstructure:"allowOrigins"`
	OAuth         OAuthServerConfig `mapstructure:"oauth"`
	Redis         RedisConfig       `mapstructure:"redis"`
	Session       SessionConfig     `mapstructure:"session"`
	Mail          MailConfig        `mapstructure:"mail"`
	MySQL         MySQLConfig       `mapstructure:"mysql"`
	SQLite        SQLiteConfig      `mapstructure:"sqlite"`
	AuthProviders struct {
		OAuth map[string]OAuthProviderConfig `mapstructure:"oauth"`
	} `mapstructure:"authProviders"`
	Captcha CaptchaConfig `mapstructure:"captcha"`
}

func (c *Config) Sanitize() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MySQL.Dsn == "" && c.SQLite.Path == "" {
		return ErrMissingDatabase
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	if c.OAuth.Issuer == "" {
		c.OAuth.Issuer = c.BaseURL
	}
	if c.Session.SessionMaxAge == 0 {
		c.Session.SessionMaxAge = DefaultCookieMaxAge
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "redis"
		if c.Redis.URL == "" {
			c.Session.Backend = "memory"
		}
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
