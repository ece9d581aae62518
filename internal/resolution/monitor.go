package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// LogReader is the subset of an Ethereum RPC client the monitor needs.
// *ethclient.Client satisfies it.
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// MonitorConfig tunes the push-mode monitor.
type MonitorConfig struct {
	CTFAddress     common.Address
	PollInterval   time.Duration
	FromBlock      uint64 // 0 starts LookbackBlocks behind the head
	LookbackBlocks uint64
	MaxBlockRange  uint64
	StopTimeout    time.Duration
}

func (c *MonitorConfig) applyDefaults() {
	if c.CTFAddress == (common.Address{}) {
		c.CTFAddress = common.HexToAddress(DefaultCTFAddress)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.LookbackBlocks == 0 {
		c.LookbackBlocks = 1000
	}
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = 2000
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
}

// Monitor follows ConditionResolution events in the background and answers
// Resolved from its cache.
type Monitor struct {
	reader   LogReader
	cfg      MonitorConfig
	cache    *Cache
	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a push-mode Source. recorder may be nil.
func NewMonitor(reader LogReader, cfg MonitorConfig, cache *Cache, recorder Recorder, logger *slog.Logger) *Monitor {
	cfg.applyDefaults()
	if cache == nil {
		cache = NewCache()
	}
	return &Monitor{
		reader:   reader,
		cfg:      cfg,
		cache:    cache,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "resolution_monitor")),
	}
}

var _ Source = (*Monitor)(nil)

// Resolved implements Source. It never blocks on the network.
func (m *Monitor) Resolved(_ context.Context, conditionID string) domain.Resolution {
	id := NormalizeID(conditionID)
	if r, ok := m.cache.Get(id); ok {
		return r
	}
	return unresolved(id)
}

// Start launches the polling goroutine. Calling Start on a running monitor
// is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(ctx, m.done)
}

// Stop signals the polling goroutine and waits for it up to StopTimeout.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(m.cfg.StopTimeout):
		m.logger.Warn("monitor did not stop in time", slog.Duration("timeout", m.cfg.StopTimeout))
		return errors.New("resolution: monitor stop timed out")
	}
}

// Run starts the monitor and blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Start(ctx)
	<-ctx.Done()
	return m.Stop()
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if _, ok := m.cache.Cursor(); !ok {
		m.cache.SetCursor(m.startCursor(ctx))
	}
	cursor, _ := m.cache.Cursor()
	m.logger.Info("resolution monitor started",
		slog.String("ctf", m.cfg.CTFAddress.Hex()),
		slog.Uint64("cursor", cursor),
		slog.Duration("interval", m.cfg.PollInterval),
	)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("resolution poll failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			m.logger.Info("resolution monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// startCursor picks the block before the first one to scan.
func (m *Monitor) startCursor(ctx context.Context) uint64 {
	if m.cfg.FromBlock > 0 {
		return m.cfg.FromBlock - 1
	}
	latest, err := m.reader.BlockNumber(ctx)
	if err != nil {
		m.logger.Warn("latest block lookup failed, scanning from genesis",
			slog.String("error", err.Error()),
		)
		return 0
	}
	if latest <= m.cfg.LookbackBlocks {
		return 0
	}
	return latest - m.cfg.LookbackBlocks
}

// Poll scans (cursor, head] once. Ranges wider than MaxBlockRange are split,
// and a range the node refuses is halved until it succeeds.
func (m *Monitor) Poll(ctx context.Context) error {
	latest, err := m.reader.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("resolution: latest block: %w", err)
	}
	cursor, ok := m.cache.Cursor()
	if !ok {
		cursor = 0
	}
	if latest <= cursor {
		return nil
	}

	span := m.cfg.MaxBlockRange
	for from := cursor + 1; from <= latest; {
		to := min(from+span-1, latest)
		logs, err := m.reader.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{m.cfg.CTFAddress},
			Topics:    [][]common.Hash{{conditionResolutionID}},
		})
		if err != nil {
			if ctx.Err() != nil || span == 1 {
				return fmt.Errorf("resolution: filter logs %d-%d: %w", from, to, err)
			}
			span = max(span/2, 1)
			m.logger.Debug("shrinking log range",
				slog.Uint64("from", from),
				slog.Uint64("span", span),
				slog.String("error", err.Error()),
			)
			continue
		}

		records := make([]domain.Resolution, 0, len(logs))
		for _, lg := range logs {
			if lg.Removed {
				continue
			}
			r, err := DecodeConditionResolution(lg)
			if err != nil {
				m.logger.Warn("skipping undecodable log",
					slog.String("tx", lg.TxHash.Hex()),
					slog.String("error", err.Error()),
				)
				continue
			}
			records = append(records, r)
		}

		stored := m.cache.Apply(records, to)
		for _, r := range stored {
			m.logger.Info("condition resolved",
				slog.String("condition_id", r.ConditionID),
				slog.Any("payouts", r.PayoutNumerators),
				slog.Uint64("block", r.BlockNumber),
			)
			m.record(ctx, r)
		}
		from = to + 1
	}
	return nil
}

func (m *Monitor) record(ctx context.Context, r domain.Resolution) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, r); err != nil {
		m.logger.Warn("resolution mirror failed",
			slog.String("condition_id", r.ConditionID),
			slog.String("error", err.Error()),
		)
	}
}

// Cache exposes the underlying cache.
func (m *Monitor) Cache() *Cache { return m.cache }
