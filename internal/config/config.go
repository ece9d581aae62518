// Package config defines the bot configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// Modes.
const (
	ModeTrade   = "trade"
	ModePaper   = "paper"
	ModeMonitor = "monitor"
)

// Resolution sources.
const (
	ResolutionPush = "push"
	ResolutionPull = "pull"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAIRBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Chain      ChainConfig      `toml:"chain"`
	Goldsky    GoldskyConfig    `toml:"goldsky"`
	Slot       SlotConfig       `toml:"slot"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Resolution ResolutionConfig `toml:"resolution"`
	Settle     SettleConfig     `toml:"settle"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the signing key. Exactly one of PrivateKey or
// EncryptedKeyPath is needed for live trading.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// FunderAddress holds the collateral when it differs from the signer
	// (proxy or Safe wallets).
	FunderAddress string `toml:"funder_address"`
}

// PolymarketConfig holds venue endpoints and order parameters.
type PolymarketConfig struct {
	ClobHost        string   `toml:"clob_host"`
	GammaHost       string   `toml:"gamma_host"`
	WsURL           string   `toml:"ws_url"`
	UseWebsocket    bool     `toml:"use_websocket"`
	QuoteStaleAfter duration `toml:"quote_stale_after"`
	HTTPTimeout     duration `toml:"http_timeout"`
	SignatureType   int      `toml:"signature_type"`
	FeeRateBps      int64    `toml:"fee_rate_bps"`
	OrderType       string   `toml:"order_type"`
	// Optional L2 credentials; derived from the wallet when empty.
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// ChainConfig holds Polygon RPC and contract parameters.
type ChainConfig struct {
	RPCURL             string `toml:"rpc_url"`
	ChainID            int64  `toml:"chain_id"`
	CTFAddress         string `toml:"ctf_address"`
	USDCAddress        string `toml:"usdc_address"`
	GasLimit           uint64 `toml:"gas_limit"`
	GasPriceMultiplier int64  `toml:"gas_price_multiplier"`
}

// GoldskyConfig points at the conditions subgraph used for pull resolution.
type GoldskyConfig struct {
	URL     string   `toml:"url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// SlotConfig describes the recurring market windows.
type SlotConfig struct {
	DurationMinutes int      `toml:"duration_minutes"`
	SlugPrefix      string   `toml:"slug_prefix"`
	TickInterval    duration `toml:"tick_interval"`
}

// StrategyConfig holds the pair engine parameters.
type StrategyConfig struct {
	OrderSize               float64 `toml:"order_size"`
	MaxInitCombinedPrice    float64 `toml:"max_init_combined_price"`
	PairDifferenceThreshold float64 `toml:"pair_difference_threshold"`
	// TakeProfit stops buying once the guaranteed profit reaches it. Zero
	// disables it.
	TakeProfit float64 `toml:"take_profit"`
}

// ResolutionConfig selects and tunes the resolution source.
type ResolutionConfig struct {
	Source         string   `toml:"source"`
	PollInterval   duration `toml:"poll_interval"`
	FromBlock      uint64   `toml:"from_block"`
	LookbackBlocks uint64   `toml:"lookback_blocks"`
	MaxBlockRange  uint64   `toml:"max_block_range"`
	QueryTimeout   duration `toml:"query_timeout"`
}

// SettleConfig controls what happens after a window closes.
type SettleConfig struct {
	PollInterval duration `toml:"poll_interval"`
	Timeout      duration `toml:"timeout"`
	Redeem       bool     `toml:"redeem"`
	// EnsureAllowance approves the exchange for USDC at startup.
	EnsureAllowance bool `toml:"ensure_allowance"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
	// QuoteTTL expires cached best asks.
	QuoteTTL duration `toml:"quote_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Prefix         string `toml:"prefix"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards every route except /api/health. Empty disables auth.
	APIKey string `toml:"api_key"`
	// RateLimitPerMinute caps requests per client IP. It needs Redis; zero
	// disables it.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:        "https://clob.polymarket.com",
			GammaHost:       "https://gamma-api.polymarket.com",
			WsURL:           "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			UseWebsocket:    true,
			QuoteStaleAfter: duration{30 * time.Second},
			HTTPTimeout:     duration{10 * time.Second},
			SignatureType:   0,
			OrderType:       string(domain.OrderTypeFOK),
		},
		Chain: ChainConfig{
			RPCURL:             "https://polygon-rpc.com",
			ChainID:            137,
			CTFAddress:         "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
			USDCAddress:        "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
			GasLimit:           500_000,
			GasPriceMultiplier: 3,
		},
		Goldsky: GoldskyConfig{
			URL:     "https://api.goldsky.com/api/public/project_cl6mb8i9h0003e201j6li0diw/subgraphs/polymarket-conditions/prod/gn",
			Timeout: duration{10 * time.Second},
		},
		Slot: SlotConfig{
			DurationMinutes: 15,
			SlugPrefix:      "btc-updown-15m",
			TickInterval:    duration{time.Second},
		},
		Strategy: StrategyConfig{
			OrderSize:               10,
			MaxInitCombinedPrice:    1.0,
			PairDifferenceThreshold: 1.5,
		},
		Resolution: ResolutionConfig{
			Source:         ResolutionPush,
			PollInterval:   duration{10 * time.Second},
			LookbackBlocks: 1000,
			MaxBlockRange:  2000,
			QueryTimeout:   duration{10 * time.Second},
		},
		Settle: SettleConfig{
			PollInterval: duration{15 * time.Second},
			Timeout:      duration{2 * time.Hour},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "pairbot:",
			QuoteTTL:   duration{time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pairbot-journals",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"window_open", "take_profit", "window_settle", "redeem", "error"},
		},
		Mode:     ModePaper,
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	ModeTrade:   true,
	ModePaper:   true,
	ModeMonitor: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks every section and returns one error, wrapping
// domain.ErrInvalidConfig, that lists all problems found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[c.Mode] {
		add("unknown mode %q (valid: trade, paper, monitor)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.Mode == ModeTrade {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			add("wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Mode != ModeMonitor {
		if c.Polymarket.ClobHost == "" {
			add("polymarket: clob_host must not be empty")
		}
		if c.Polymarket.GammaHost == "" {
			add("polymarket: gamma_host must not be empty")
		}
	}
	if st := c.Polymarket.SignatureType; st < 0 || st > 2 {
		add("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", st)
	}
	switch domain.OrderType(c.Polymarket.OrderType) {
	case domain.OrderTypeFOK, domain.OrderTypeFAK, domain.OrderTypeGTC:
	default:
		add("polymarket: order_type must be FOK, FAK or GTC, got %q", c.Polymarket.OrderType)
	}
	k, s, p := c.Polymarket.ApiKey != "", c.Polymarket.ApiSecret != "", c.Polymarket.ApiPassphrase != ""
	if (k || s || p) && !(k && s && p) {
		add("polymarket: api_key, api_secret and api_passphrase must be set together")
	}

	if c.Chain.ChainID <= 0 {
		add("chain: chain_id must be positive")
	}

	if m := c.Slot.DurationMinutes; m <= 0 || m > 60 || 60%m != 0 {
		add("slot: duration_minutes must divide 60, got %d", m)
	}
	if c.Slot.SlugPrefix == "" {
		add("slot: slug_prefix must not be empty")
	}
	if c.Slot.TickInterval.Duration <= 0 {
		add("slot: tick_interval must be > 0")
	}

	if c.Strategy.OrderSize <= 0 {
		add("strategy: order_size must be > 0")
	}
	if c.Strategy.MaxInitCombinedPrice <= 0 {
		add("strategy: max_init_combined_price must be > 0")
	}
	if c.Strategy.PairDifferenceThreshold < 1 {
		add("strategy: pair_difference_threshold must be >= 1")
	}
	if c.Strategy.TakeProfit < 0 {
		add("strategy: take_profit must be >= 0")
	}

	switch c.Resolution.Source {
	case ResolutionPush:
		if c.Chain.RPCURL == "" {
			add("chain: rpc_url is required for push resolution")
		}
		if c.Resolution.MaxBlockRange == 0 {
			add("resolution: max_block_range must be > 0")
		}
	case ResolutionPull:
		if c.Goldsky.URL == "" {
			add("goldsky: url is required for pull resolution")
		}
	default:
		add("resolution: source must be push or pull, got %q", c.Resolution.Source)
	}
	if c.Resolution.PollInterval.Duration <= 0 {
		add("resolution: poll_interval must be > 0")
	}
	if c.Mode == ModeMonitor && c.Resolution.Source == ResolutionPull && !c.Server.Enabled {
		add("monitor: pull resolution runs nothing in the background, enable the server or use push")
	}

	if c.Settle.PollInterval.Duration <= 0 {
		add("settle: poll_interval must be > 0")
	}
	if c.Settle.Timeout.Duration <= 0 {
		add("settle: timeout must be > 0")
	}
	if (c.Settle.Redeem || c.Settle.EnsureAllowance) && c.Chain.RPCURL == "" {
		add("chain: rpc_url is required for settle.redeem or settle.ensure_allowance")
	}

	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				add("supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				add("supabase: port must be 1-65535, got %d", c.Supabase.Port)
			}
			if c.Supabase.Database == "" {
				add("supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			add("supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			add("supabase: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		add("server: rate_limit_per_minute must be >= 0")
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		add("notify: telegram_chat_id is required with telegram_token")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: config validation failed:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
