package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pairbot/internal/crypto"
	"github.com/alanyoungcy/pairbot/internal/domain"
)

// OrderExecutorConfig controls how buys are signed and posted.
type OrderExecutorConfig struct {
	// Funder holds the collateral; zero means the signer's own address.
	Funder        common.Address
	SignatureType int
	FeeRateBps    int64
	OrderType     domain.OrderType
	Timeout       time.Duration
}

// OrderExecutor places fill-or-kill limit buys on the CLOB.
type OrderExecutor struct {
	clob   *ClobClient
	signer *crypto.Signer
	cfg    OrderExecutorConfig
	logger *slog.Logger
}

// NewOrderExecutor creates an executor signing with the CLOB client's signer.
func NewOrderExecutor(clob *ClobClient, cfg OrderExecutorConfig, logger *slog.Logger) (*OrderExecutor, error) {
	signer := clob.Signer()
	if signer == nil {
		return nil, fmt.Errorf("polymarket: order executor needs a signer")
	}
	if cfg.Funder == (common.Address{}) {
		cfg.Funder = signer.Address()
	}
	if cfg.OrderType == "" {
		cfg.OrderType = domain.OrderTypeFOK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &OrderExecutor{
		clob:   clob,
		signer: signer,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "clob_executor")),
	}, nil
}

// Buy implements strategy.OrderExecutor. A rejected or unfilled order is
// reported as (false, nil); transport failures as an error.
func (e *OrderExecutor) Buy(ctx context.Context, market domain.Market, leg domain.Leg, price, size float64) (bool, error) {
	tokenID := market.TokenID(leg)
	if tokenID == "" {
		return false, fmt.Errorf("polymarket: buy %s: %w: no token id", leg, domain.ErrInvalidOrder)
	}
	maker, taker, err := BuyAmounts(price, size, market.TickSize)
	if err != nil {
		return false, fmt.Errorf("polymarket: buy %s: %w: %w", leg, domain.ErrInvalidOrder, err)
	}

	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(rand.Int64N(1<<48), 10),
		Maker:         e.cfg.Funder.Hex(),
		Signer:        e.signer.Address().Hex(),
		Taker:         common.Address{}.Hex(),
		TokenID:       tokenID,
		MakerAmount:   maker.String(),
		TakerAmount:   taker.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    strconv.FormatInt(e.cfg.FeeRateBps, 10),
		Side:          0,
		SignatureType: e.cfg.SignatureType,
	}
	exchange := common.HexToAddress(crypto.CTFExchangeAddress)
	if market.NegRisk {
		exchange = common.HexToAddress(crypto.NegRiskCTFExchangeAddress)
	}
	sig, err := e.signer.SignOrder(payload, exchange)
	if err != nil {
		return false, fmt.Errorf("polymarket: buy %s: %w: %w", leg, domain.ErrSigningFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	res, err := e.clob.PostOrder(ctx, payload, sig, e.cfg.OrderType)
	if err != nil {
		if errors.Is(err, domain.ErrOrderRejected) {
			e.logger.Info("order rejected",
				slog.String("leg", leg.String()),
				slog.Float64("price", price),
				slog.String("error", err.Error()),
			)
			return false, nil
		}
		return false, err
	}

	filled := res.Success && (res.Status == "" || strings.EqualFold(res.Status, "matched"))
	e.logger.Info("order posted",
		slog.String("leg", leg.String()),
		slog.String("order_id", res.OrderID),
		slog.String("status", res.Status),
		slog.Float64("price", price),
		slog.Float64("size", size),
		slog.Bool("filled", filled),
	)
	if !filled && res.Message != "" {
		e.logger.Debug("order not filled", slog.String("reason", res.Message))
	}
	return filled, nil
}
