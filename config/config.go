package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the relay server settings.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Environment    string   `env:"ENVIRONMENT" envDefault:"development"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:5173" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	// SendBufferSize bounds the per-session outbound queue. Frames beyond it are dropped.
	SendBufferSize int `env:"SEND_BUFFER_SIZE" envDefault:"256"`

	Redis RedisConfig `envPrefix:"REDIS_"`
}

type RedisConfig struct {
	Enabled     bool          `env:"ENABLED" envDefault:"false"`
	Host        string        `env:"HOST" envDefault:"localhost"`
	Port        string        `env:"PORT" envDefault:"6379"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	PresenceTTL time.Duration `env:"PRESENCE_TTL" envDefault:"24h"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads the relay configuration from the environment.
func Load() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if c.SendBufferSize <= 0 {
		return nil, fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", c.SendBufferSize)
	}

	return &c, nil
}

// ClientConfig holds the settings of the peerconnect client.
type ClientConfig struct {
	SignalingURL string        `env:"SIGNALING_URL" envDefault:"ws://localhost:8080/ws"`
	STUNServers  []string      `env:"STUN_SERVERS" envDefault:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302" envSeparator:","`
	OfferDelay   time.Duration `env:"OFFER_DELAY" envDefault:"1s"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"20s"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
}

func LoadClient() (*ClientConfig, error) {
	c, err := env.ParseAs[ClientConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &c, nil
}
