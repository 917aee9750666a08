// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix для переменных окружения: TGBOT_TELEGRAM_TOKEN и т.д.
const EnvPrefix = "TGBOT"

// DefaultEnvFile читается до конфигурационного файла.
const DefaultEnvFile = "t.env"

type Config struct {
	TelegramToken  string        `mapstructure:"telegram_token"`
	TelegramAPIURL string        `mapstructure:"telegram_api_url"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	OwnerChatID    int64         `mapstructure:"owner_chat_id"`

	RPCList       []string `mapstructure:"rpc_list"`
	GasBuffer     float64  `mapstructure:"gas_buffer"`
	CongestionFee float64  `mapstructure:"congestion_fee"`
	JitterMaxMS   int      `mapstructure:"jitter_max_ms"`
	ExplorerURL   string   `mapstructure:"explorer_url"`

	ManualSellInterval time.Duration `mapstructure:"manual_sell_interval"`
	LimitOrderInterval time.Duration `mapstructure:"limit_order_interval"`
	NewTokenInterval   time.Duration `mapstructure:"new_token_interval"`
	NewTokenFeedURL    string        `mapstructure:"new_token_feed_url"`

	DexScreenerURL string `mapstructure:"dexscreener_url"`
	CoinGeckoURL   string `mapstructure:"coingecko_url"`

	NameUpdateCooldown time.Duration `mapstructure:"name_update_cooldown"`
	CardRetention      time.Duration `mapstructure:"card_retention"`

	WebhookListen string `mapstructure:"webhook_listen"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	VaultKey      string `mapstructure:"vault_key"`

	LogFile      string `mapstructure:"log_file"`
	DebugLogging bool   `mapstructure:"debug_logging"`

	License            string `mapstructure:"license"`
	KeygenAccountID    string `mapstructure:"keygen_account_id"`
	KeygenProductToken string `mapstructure:"keygen_product_token"`
	KeygenProductID    string `mapstructure:"keygen_product_id"`
}

const (
	DefaultRPC                = "https://api.mainnet-beta.solana.com"
	DefaultTelegramAPIURL     = "https://api.telegram.org"
	DefaultPollTimeout        = 30 * time.Second
	DefaultGasBuffer          = 0.001
	DefaultCongestionFee      = 0.001
	DefaultJitterMaxMS        = 100
	DefaultManualSellInterval = 300 * time.Second
	DefaultLimitOrderInterval = 60 * time.Second
	DefaultNewTokenInterval   = 300 * time.Second
	DefaultNameUpdateCooldown = 14 * 24 * time.Hour
	DefaultCardRetention      = 90 * 24 * time.Hour
	DefaultLogFile            = "logs/bot.log"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"telegram_token":       "",
		"telegram_api_url":     DefaultTelegramAPIURL,
		"poll_timeout":         DefaultPollTimeout,
		"owner_chat_id":        0,
		"rpc_list":             []string{DefaultRPC},
		"gas_buffer":           DefaultGasBuffer,
		"congestion_fee":       DefaultCongestionFee,
		"jitter_max_ms":        DefaultJitterMaxMS,
		"explorer_url":         "https://solscan.io",
		"manual_sell_interval": DefaultManualSellInterval,
		"limit_order_interval": DefaultLimitOrderInterval,
		"new_token_interval":   DefaultNewTokenInterval,
		"new_token_feed_url":   "",
		"dexscreener_url":      "https://api.dexscreener.com",
		"coingecko_url":        "https://api.coingecko.com",
		"name_update_cooldown": DefaultNameUpdateCooldown,
		"card_retention":       DefaultCardRetention,
		"webhook_listen":       "",
		"webhook_secret":       "",
		"vault_key":            "",
		"log_file":             DefaultLogFile,
		"debug_logging":        false,
		"license":              "",
		"keygen_account_id":    "",
		"keygen_product_token": "",
		"keygen_product_id":    "",
	}
}

// LoadConfig читает envFile (если есть), затем файл конфигурации (если
// задан) и переменные окружения TGBOT_*. Окружение важнее файла.
func LoadConfig(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// из окружения список приходит строкой через запятую
	cfg.RPCList = splitList(cfg.RPCList)

	return &cfg, validateConfig(&cfg)
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}

// RPC returns the first configured endpoint.
func (c *Config) RPC() string {
	return c.RPCList[0]
}

// JitterMax converts jitter_max_ms.
func (c *Config) JitterMax() time.Duration {
	return time.Duration(c.JitterMaxMS) * time.Millisecond
}

// RequireTelegram проверяет настройки, нужные только Telegram транспорту.
func (c *Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("missing telegram_token in configuration")
	}
	if c.WebhookListen != "" && c.WebhookSecret == "" {
		return errors.New("webhook_secret is required when webhook_listen is set")
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	for key, raw := range map[string]string{
		"telegram_api_url":   cfg.TelegramAPIURL,
		"dexscreener_url":    cfg.DexScreenerURL,
		"coingecko_url":      cfg.CoinGeckoURL,
		"explorer_url":       cfg.ExplorerURL,
		"new_token_feed_url": cfg.NewTokenFeedURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateURL(raw, "http"); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.GasBuffer < 0 {
		return errors.New("invalid gas_buffer")
	}
	if cfg.CongestionFee < 0 {
		return errors.New("invalid congestion_fee")
	}
	if cfg.JitterMaxMS < 0 {
		return errors.New("invalid jitter_max_ms")
	}
	if cfg.ManualSellInterval <= 0 {
		return errors.New("invalid manual_sell_interval")
	}
	if cfg.LimitOrderInterval <= 0 {
		return errors.New("invalid limit_order_interval")
	}
	if cfg.NewTokenFeedURL != "" && cfg.NewTokenInterval <= 0 {
		return errors.New("invalid new_token_interval")
	}
	if cfg.NameUpdateCooldown < 0 || cfg.CardRetention < 0 {
		return errors.New("retention periods must not be negative")
	}
	if cfg.PollTimeout < 0 {
		return errors.New("invalid poll_timeout")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	return nil
}
