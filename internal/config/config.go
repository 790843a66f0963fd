package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// Twitter/X OAuth 1.0a app key
	EnvTwitterConsumerKey = "TWITTER_CONSUMER_KEY"
	// Twitter/X OAuth 1.0a app secret
	EnvTwitterConsumerSecret = "TWITTER_CONSUMER_SECRET"
	// Twitter/X user access token
	EnvTwitterAccessToken = "TWITTER_ACCESS_TOKEN_KEY"
	// Twitter/X user access token secret
	EnvTwitterAccessSecret = "TWITTER_ACCESS_TOKEN_SECRET"

	// Mastodon instance hostname, e.g. "mastodon.social"
	EnvMastodonHost = "MASTODON_HOST"
	// Mastodon application access token
	EnvMastodonToken = "MASTODON_TOKEN"

	// Per-request HTTP timeout (e.g. "30s")
	EnvHTTPTimeout = "XPOST_HTTP_TIMEOUT"
	// Simulate posting without calling any platform
	EnvDryRun = "XPOST_DRY_RUN"

	// Log level (e.g. "debug", "info", "warn", "error")
	EnvLogLevel = "LOG_LEVEL"
	// Log output format (e.g. "text", "json", "logfmt")
	EnvLogFormat = "LOG_FORMAT"

	DefaultHTTPTimeout = 30 * time.Second
)

// Config is resolved once at startup and read-only afterwards.
type Config struct {
	Twitter  Twitter
	Mastodon Mastodon

	HTTPTimeout time.Duration
	DryRun      bool

	LogLevel  string
	LogFormat string
}

// Twitter holds the OAuth 1.0a user-context credentials.
type Twitter struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Missing lists the unset variables. Any missing value disables the platform.
func (t Twitter) Missing() []string {
	var missing []string
	if t.ConsumerKey == "" {
		missing = append(missing, EnvTwitterConsumerKey)
	}
	if t.ConsumerSecret == "" {
		missing = append(missing, EnvTwitterConsumerSecret)
	}
	if t.AccessToken == "" {
		missing = append(missing, EnvTwitterAccessToken)
	}
	if t.AccessSecret == "" {
		missing = append(missing, EnvTwitterAccessSecret)
	}
	return missing
}

// Mastodon holds the instance host and bearer token.
type Mastodon struct {
	Host  string
	Token string
}

// Missing lists the unset variables. Either missing value disables the platform.
func (m Mastodon) Missing() []string {
	var missing []string
	if m.Host == "" {
		missing = append(missing, EnvMastodonHost)
	}
	if m.Token == "" {
		missing = append(missing, EnvMastodonToken)
	}
	return missing
}

// Load reads envFile (dotenv syntax) if it exists and overlays the process
// environment on top of it. An empty envFile skips the file entirely.
func Load(envFile string) (Config, error) {
	v := viper.New()
	v.SetDefault(EnvHTTPTimeout, DefaultHTTPTimeout)
	v.SetDefault(EnvLogLevel, "info")
	v.SetDefault(EnvLogFormat, "text")
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("dotenv")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read %s: %w", envFile, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("stat %s: %w", envFile, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	timeout := v.GetDuration(EnvHTTPTimeout)
	if timeout <= 0 {
		return Config{}, fmt.Errorf("%s must be a positive duration, got %q", EnvHTTPTimeout, v.GetString(EnvHTTPTimeout))
	}

	return Config{
		Twitter: Twitter{
			ConsumerKey:    get(v, EnvTwitterConsumerKey),
			ConsumerSecret: get(v, EnvTwitterConsumerSecret),
			AccessToken:    get(v, EnvTwitterAccessToken),
			AccessSecret:   get(v, EnvTwitterAccessSecret),
		},
		Mastodon: Mastodon{
			Host:  get(v, EnvMastodonHost),
			Token: get(v, EnvMastodonToken),
		},
		HTTPTimeout: timeout,
		DryRun:      v.GetBool(EnvDryRun),
		LogLevel:    get(v, EnvLogLevel),
		LogFormat:   get(v, EnvLogFormat),
	}, nil
}

func get(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}
