package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/pairbot/internal/blob/s3"
	"github.com/alanyoungcy/pairbot/internal/cache/redis"
	"github.com/alanyoungcy/pairbot/internal/config"
	"github.com/alanyoungcy/pairbot/internal/crypto"
	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/notify"
	"github.com/alanyoungcy/pairbot/internal/paper"
	"github.com/alanyoungcy/pairbot/internal/platform/goldsky"
	"github.com/alanyoungcy/pairbot/internal/platform/polygon"
	"github.com/alanyoungcy/pairbot/internal/platform/polymarket"
	"github.com/alanyoungcy/pairbot/internal/resolution"
	"github.com/alanyoungcy/pairbot/internal/store/postgres"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

// minAllowance is the USDC allowance (6 decimals) below which startup
// re-approves the exchange: one million dollars.
var minAllowance = big.NewInt(1_000_000_000_000)

// Dependencies bundles everything the modes need. Optional parts are nil
// when their backend is disabled.
type Dependencies struct {
	// Stores
	WindowStore     domain.WindowStore
	ResolutionStore domain.ResolutionStore
	AuditStore      domain.AuditStore
	FillStore       domain.FillStore

	// Caches
	ResolutionCache domain.ResolutionCache
	QuoteCache      domain.QuoteCache
	LockManager     domain.LockManager
	RateLimiter     domain.RateLimiter
	MarketCache     domain.MarketCache

	// Blob storage
	Journal *s3blob.JournalArchiver

	// Venue
	Gamma   *polymarket.GammaClient
	Markets MarketFinder
	Quotes  strategy.QuoteSource
	Stream  *polymarket.StreamQuotes
	Orders  strategy.OrderExecutor

	// Chain
	Account *polygon.Account
	Goldsky *goldsky.Client

	// Resolution
	Resolution resolution.Source
	Monitor    *resolution.Monitor
	Mirror     *resolutionMirror

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.WindowStore = postgres.NewWindowStore(pool)
		deps.ResolutionStore = postgres.NewResolutionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.FillStore = postgres.NewFillStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ResolutionCache = redis.NewResolutionCache(redisClient, 0)
		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.MarketCache = redis.NewMarketCache(redisClient, 0)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			Prefix:         cfg.S3.Prefix,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Journal = s3blob.NewJournalArchiver(s3blob.NewWriter(s3Client, 0))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, ""))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Signer ---
	var signer *crypto.Signer
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: wallet: %w", err))
		}
		signer, err = crypto.NewSigner(key, cfg.Chain.ChainID)
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
	}

	// --- Chain RPC ---
	live := cfg.Mode == config.ModeTrade
	needChain := cfg.Resolution.Source == config.ResolutionPush ||
		(live && signer != nil && (cfg.Settle.Redeem || cfg.Settle.EnsureAllowance))
	var eth *ethclient.Client
	if needChain {
		var err error
		eth, err = ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail(fmt.Errorf("wire: rpc: %w", err))
		}
		closers = append(closers, eth.Close)
	}
	if eth != nil && signer != nil && live {
		deps.Account = polygon.NewAccount(eth, signer, polygon.AccountConfig{
			USDC:               common.HexToAddress(cfg.Chain.USDCAddress),
			CTF:                common.HexToAddress(cfg.Chain.CTFAddress),
			GasLimit:           cfg.Chain.GasLimit,
			GasPriceMultiplier: cfg.Chain.GasPriceMultiplier,
		}, logger)
	}

	// --- Resolution ---
	if cfg.Goldsky.URL != "" {
		deps.Goldsky = goldsky.NewClient(cfg.Goldsky.URL, cfg.Goldsky.APIKey, cfg.Goldsky.Timeout.Duration)
	}
	deps.Mirror = newResolutionMirror(deps.ResolutionCache, deps.ResolutionStore, logger)
	var recorder resolution.Recorder
	if deps.Mirror != nil {
		recorder = deps.Mirror
	}
	switch cfg.Resolution.Source {
	case config.ResolutionPush:
		deps.Monitor = resolution.NewMonitor(eth, resolution.MonitorConfig{
			CTFAddress:     common.HexToAddress(cfg.Chain.CTFAddress),
			PollInterval:   cfg.Resolution.PollInterval.Duration,
			FromBlock:      cfg.Resolution.FromBlock,
			LookbackBlocks: cfg.Resolution.LookbackBlocks,
			MaxBlockRange:  cfg.Resolution.MaxBlockRange,
		}, nil, recorder, logger)
		deps.Resolution = deps.Monitor
	case config.ResolutionPull:
		deps.Resolution = resolution.NewQuery(deps.Goldsky, nil, recorder, cfg.Resolution.QueryTimeout.Duration, logger)
	default:
		return fail(fmt.Errorf("wire: resolution source %q: %w", cfg.Resolution.Source, domain.ErrInvalidConfig))
	}

	if cfg.Mode == config.ModeMonitor {
		return deps, cleanup, nil
	}

	// --- Polymarket ---
	var auth *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}
	timeout := cfg.Polymarket.HTTPTimeout.Duration
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, timeout, signer, auth)
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, timeout)
	deps.Markets = newCachedFinder(deps.Gamma, deps.MarketCache, logger)

	book := polymarket.NewBookQuotes(clob, timeout)
	deps.Quotes = book
	if cfg.Polymarket.UseWebsocket {
		deps.Stream = polymarket.NewStreamQuotes(cfg.Polymarket.WsURL, book, cfg.Polymarket.QuoteStaleAfter.Duration, logger)
		deps.Quotes = deps.Stream
	}

	if !live {
		deps.Orders = paper.NewExecutor(deps.Quotes, logger)
		return deps, cleanup, nil
	}

	if signer == nil {
		return fail(fmt.Errorf("wire: trade mode needs a wallet: %w", domain.ErrInvalidConfig))
	}
	if !clob.HasCredentials() {
		if _, err := clob.DeriveAPIKey(ctx, 0); err != nil {
			return fail(fmt.Errorf("wire: derive clob api key: %w", err))
		}
	}
	orders, err := polymarket.NewOrderExecutor(clob, polymarket.OrderExecutorConfig{
		Funder:        common.HexToAddress(cfg.Wallet.FunderAddress),
		SignatureType: cfg.Polymarket.SignatureType,
		FeeRateBps:    cfg.Polymarket.FeeRateBps,
		OrderType:     domain.OrderType(cfg.Polymarket.OrderType),
		Timeout:       timeout,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: order executor: %w", err))
	}
	deps.Orders = orders

	if deps.Account != nil && cfg.Settle.EnsureAllowance {
		if err := ensureAllowances(ctx, deps.Account, logger); err != nil {
			return fail(fmt.Errorf("wire: allowance: %w", err))
		}
	}
	return deps, cleanup, nil
}

// ensureAllowances approves both exchanges to spend USDC and logs the
// wallet's balances.
func ensureAllowances(ctx context.Context, account *polygon.Account, logger *slog.Logger) error {
	for _, exchange := range []string{crypto.CTFExchangeAddress, crypto.NegRiskCTFExchangeAddress} {
		if _, err := account.EnsureAllowance(ctx, common.HexToAddress(exchange), minAllowance); err != nil {
			return err
		}
	}
	usdc, err := account.USDCBalance(ctx)
	if err != nil {
		return err
	}
	native, err := account.NativeBalance(ctx)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "wallet ready",
		slog.String("address", account.Address().Hex()),
		slog.String("usdc", polymarket.FromBaseUnits(usdc).String()),
		slog.String("pol_wei", native.String()),
	)
	return nil
}
