package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ServiceName    = "futures-signal-executor"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	APIKeys                 []APIKeyConfig            `mapstructure:"api_keys"`
	Port                    map[string]string         `mapstructure:"port"`
	Exchanges               map[string]ExchangeConfig `mapstructure:"exchanges"`
	Executor                ExecutorConfig            `mapstructure:"executor"`
	Database                map[string]DatabaseConfig `mapstructure:"database"`
	Redis                   map[string]RedisConfig    `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig       `mapstructure:"nats_jetstream"`
}

type APIKeyConfig struct {
	Name      string `mapstructure:"name"`
	Key       string `mapstructure:"key"`
	Active    bool   `mapstructure:"active"`
	ExpiredAt any    `mapstructure:"expired_at"`
}

type NatsJetstreamConfig struct {
	URL             string                   `mapstructure:"url"`
	MaxRetries      int                      `mapstructure:"max_retries"`
	ReconnectFactor float64                  `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration            `mapstructure:"min_jitter"`
	MaxJitter       time.Duration            `mapstructure:"max_jitter"`
	TimeoutHandler  map[string]time.Duration `mapstructure:"timeout_handler"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

// ExchangeConfig holds the account credentials and the account level trading choices.
// It is handed to the exchange client at construction time.
type ExchangeConfig struct {
	Name          string        `mapstructure:"name"`
	APIKey        string        `mapstructure:"api_key"`
	APISecret     string        `mapstructure:"api_secret"`
	BaseURL       string        `mapstructure:"base_url"`
	RecvWindow    time.Duration `mapstructure:"recv_window"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	MarginMode    string        `mapstructure:"margin_mode"`    // isolated or cross
	QuoteCurrency string        `mapstructure:"quote_currency"` // e.g. USDT
}

type ExecutorConfig struct {
	LockTimeout          time.Duration `mapstructure:"lock_timeout"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	PositionQueryRetries int           `mapstructure:"position_query_retries"`
	PositionQueryBackoff time.Duration `mapstructure:"position_query_backoff"`
	RequireAPIKey        bool          `mapstructure:"require_api_key"`
}

// RedisConfig is only needed when executions of one account are spread over several processes.
type RedisConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxRetry        int           `mapstructure:"max_retry"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// credentials are usually injected by the deployment, not committed to config.yml
	_ = viper.BindEnv("exchanges.mexc.api_key", "EXCHANGES_MEXC_API_KEY", "MEXC_API_KEY")
	_ = viper.BindEnv("exchanges.mexc.api_secret", "EXCHANGES_MEXC_API_SECRET", "MEXC_SECRET_KEY", "MEXC_API_SECRET")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}
