// Package polygon manages the trading wallet on Polygon: collateral
// balances, the exchange allowance and redemption of resolved positions.
package polygon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/pairbot/internal/crypto"
)

// Polygon mainnet contract addresses.
const (
	USDCAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	CTFAddress  = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
)

const accountABIJSON = `[
  {"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[
    {"name":"collateralToken","type":"address"},
    {"name":"parentCollectionId","type":"bytes32"},
    {"name":"conditionId","type":"bytes32"},
    {"name":"indexSets","type":"uint256[]"}
  ],"name":"redeemPositions","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var accountABI = mustParseABI(accountABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// MaxUint256 is the allowance granted by EnsureAllowance.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Backend is the subset of *ethclient.Client the account uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// AccountConfig tunes transaction submission.
type AccountConfig struct {
	USDC               common.Address
	CTF                common.Address
	GasLimit           uint64
	GasPriceMultiplier int64
	ReceiptTimeout     time.Duration
	ReceiptPoll        time.Duration
}

func (c *AccountConfig) applyDefaults() {
	if c.USDC == (common.Address{}) {
		c.USDC = common.HexToAddress(USDCAddress)
	}
	if c.CTF == (common.Address{}) {
		c.CTF = common.HexToAddress(CTFAddress)
	}
	if c.GasLimit == 0 {
		c.GasLimit = 500_000
	}
	if c.GasPriceMultiplier <= 0 {
		c.GasPriceMultiplier = 3
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 2 * time.Minute
	}
	if c.ReceiptPoll <= 0 {
		c.ReceiptPoll = 2 * time.Second
	}
}

// Account is the signer's externally owned account.
type Account struct {
	backend Backend
	signer  *crypto.Signer
	cfg     AccountConfig
	logger  *slog.Logger
}

// NewAccount creates an account bound to signer's address.
func NewAccount(backend Backend, signer *crypto.Signer, cfg AccountConfig, logger *slog.Logger) *Account {
	cfg.applyDefaults()
	return &Account{
		backend: backend,
		signer:  signer,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "polygon_account")),
	}
}

// Address returns the account address.
func (a *Account) Address() common.Address { return a.signer.Address() }

// USDCBalance returns the collateral balance in base units.
func (a *Account) USDCBalance(ctx context.Context) (*big.Int, error) {
	out, err := a.call(ctx, a.cfg.USDC, "balanceOf", a.Address())
	if err != nil {
		return nil, fmt.Errorf("polygon: usdc balance: %w", err)
	}
	return out, nil
}

// NativeBalance returns the POL balance in wei.
func (a *Account) NativeBalance(ctx context.Context) (*big.Int, error) {
	bal, err := a.backend.BalanceAt(ctx, a.Address(), nil)
	if err != nil {
		return nil, fmt.Errorf("polygon: native balance: %w", err)
	}
	return bal, nil
}

// Allowance returns how much USDC spender may move for the account.
func (a *Account) Allowance(ctx context.Context, spender common.Address) (*big.Int, error) {
	out, err := a.call(ctx, a.cfg.USDC, "allowance", a.Address(), spender)
	if err != nil {
		return nil, fmt.Errorf("polygon: usdc allowance: %w", err)
	}
	return out, nil
}

// EnsureAllowance approves spender for the maximum amount when the current
// allowance is below minimum. It returns the approval tx hash, or the zero hash
// when nothing was sent.
func (a *Account) EnsureAllowance(ctx context.Context, spender common.Address, minimum *big.Int) (common.Hash, error) {
	current, err := a.Allowance(ctx, spender)
	if err != nil {
		return common.Hash{}, err
	}
	if current.Cmp(minimum) >= 0 {
		return common.Hash{}, nil
	}

	data, err := accountABI.Pack("approve", spender, MaxUint256)
	if err != nil {
		return common.Hash{}, fmt.Errorf("polygon: pack approve: %w", err)
	}
	hash, err := a.transact(ctx, a.cfg.USDC, data)
	if err != nil {
		return hash, fmt.Errorf("polygon: approve %s: %w", spender.Hex(), err)
	}
	a.logger.Info("usdc allowance approved",
		slog.String("spender", spender.Hex()),
		slog.String("tx", hash.Hex()),
	)
	return hash, nil
}

// Redeem burns both outcome positions of a resolved condition for
// collateral.
func (a *Account) Redeem(ctx context.Context, conditionID string) (common.Hash, error) {
	cond := common.HexToHash(conditionID)
	if cond == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("polygon: redeem: invalid condition id %q", conditionID)
	}
	indexSets := []*big.Int{big.NewInt(1), big.NewInt(2)}
	data, err := accountABI.Pack("redeemPositions", a.cfg.USDC, [32]byte{}, [32]byte(cond), indexSets)
	if err != nil {
		return common.Hash{}, fmt.Errorf("polygon: pack redeem: %w", err)
	}

	// Preflight so a revert costs no gas.
	if _, err := a.backend.CallContract(ctx, ethereum.CallMsg{From: a.Address(), To: &a.cfg.CTF, Data: data}, nil); err != nil {
		return common.Hash{}, fmt.Errorf("polygon: redeem %s preflight: %w", conditionID, err)
	}

	hash, err := a.transact(ctx, a.cfg.CTF, data)
	if err != nil {
		return hash, fmt.Errorf("polygon: redeem %s: %w", conditionID, err)
	}
	a.logger.Info("positions redeemed",
		slog.String("condition_id", conditionID),
		slog.String("tx", hash.Hex()),
	)
	return hash, nil
}

// call runs a view method that returns a single uint256.
func (a *Account) call(ctx context.Context, to common.Address, method string, args ...any) (*big.Int, error) {
	data, err := accountABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := accountABI.Unpack(method, out)
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%s: unexpected result len %d", method, len(vals))
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, vals[0])
	}
	return n, nil
}

// transact signs and sends a legacy transaction and waits for a successful
// receipt.
func (a *Account) transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	nonce, err := a.backend.PendingNonceAt(ctx, a.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	gasPrice = new(big.Int).Mul(gasPrice, big.NewInt(a.cfg.GasPriceMultiplier))

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      a.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(a.signer.ChainID())), a.signer.PrivateKey())
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}

	receipt, err := a.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return signed.Hash(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signed.Hash(), fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}
	return signed.Hash(), nil
}

func (a *Account) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(a.cfg.ReceiptPoll)
	defer ticker.Stop()
	for {
		receipt, err := a.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
