package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`

	Database struct {
		Driver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
		DSN    string `env:"DATABASE_DSN" envDefault:"streamwatch.db"`
	}

	Poll struct {
		YouTubeIntervalSecs    int    `env:"CHECK_YOUTUBE_INTERVAL" envDefault:"300"`
		TwitchIntervalSecs     int    `env:"CHECK_TWITCH_INTERVAL" envDefault:"180"`
		Concurrency            int    `env:"POLL_CONCURRENCY" envDefault:"5"`
		DeliveryRetentionHours int    `env:"DELIVERY_RETENTION_HOURS" envDefault:"336"`
		Destination            string `env:"NOTIFY_DESTINATION"`
	}

	YouTube struct {
		APIKey string `env:"YOUTUBE_API_KEY"`
	}

	Twitch struct {
		ClientID     string `env:"TWITCH_CLIENT_ID"`
		ClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	}

	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	Activity struct {
		MinSessionSecs      int64 `env:"ACTIVITY_MIN_SESSION_SECS" envDefault:"0"`
		RankingDefaultLimit int   `env:"RANKING_DEFAULT_LIMIT" envDefault:"10"`
	}

	creds map[string]string
}

func NewConfig(log *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Sugar().Warnw("Failed to load .env file", "err", err)
	}
	return Parse(log)
}

// Parse reads the config from the process environment.
func Parse(log *zap.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		log.Sugar().Warn("BASIC_AUTH_CREDS is not set, the API will not require authentication")
	}
	cfg.creds = creds

	return cfg, nil
}

func (cfg *Config) IsProduction() bool {
	return cfg.Env == "production"
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) YouTubeInterval() time.Duration {
	return time.Duration(cfg.Poll.YouTubeIntervalSecs) * time.Second
}

func (cfg *Config) TwitchInterval() time.Duration {
	return time.Duration(cfg.Poll.TwitchIntervalSecs) * time.Second
}

func (cfg *Config) DeliveryRetention() time.Duration {
	return time.Duration(cfg.Poll.DeliveryRetentionHours) * time.Hour
}

func (cfg *Config) validate() error {
	if cfg.Poll.YouTubeIntervalSecs <= 0 || cfg.Poll.TwitchIntervalSecs <= 0 {
		return errors.New("CHECK_YOUTUBE_INTERVAL and CHECK_TWITCH_INTERVAL must be positive")
	}
	if cfg.Poll.Concurrency <= 0 {
		return errors.New("POLL_CONCURRENCY must be positive")
	}
	if cfg.Activity.MinSessionSecs < 0 {
		return errors.New("ACTIVITY_MIN_SESSION_SECS must not be negative")
	}
	if cfg.Activity.RankingDefaultLimit <= 0 {
		return errors.New("RANKING_DEFAULT_LIMIT must be positive")
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", cfg.Database.Driver)
	}
	return nil
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if strings.TrimSpace(cfg.BasicAuthCreds) == "" {
		return nil, nil
	}

	result := make(map[string]string)
	for _, cred := range strings.Split(cfg.BasicAuthCreds, ",") {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
