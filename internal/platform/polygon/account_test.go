package polygon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/pairbot/internal/crypto"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeBackend struct {
	balance   *big.Int
	allowance *big.Int
	native    *big.Int
	gasPrice  *big.Int
	callErr   error
	pending   int // receipt lookups returning NotFound before the receipt
	status    uint64

	sent  []*types.Transaction
	calls []ethereum.CallMsg
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.callErr != nil {
		return nil, f.callErr
	}
	switch {
	case hasSelector(msg.Data, "balanceOf"):
		return accountABI.Methods["balanceOf"].Outputs.Pack(f.balance)
	case hasSelector(msg.Data, "allowance"):
		return accountABI.Methods["allowance"].Outputs.Pack(f.allowance)
	}
	return nil, nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if f.pending > 0 {
		f.pending--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.status}, nil
}

func hasSelector(data []byte, method string) bool {
	id := accountABI.Methods[method].ID
	return len(data) >= 4 && string(data[:4]) == string(id)
}

func newTestAccount(t *testing.T, b *fakeBackend) *Account {
	t.Helper()
	signer, err := crypto.NewSigner(testKey, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return NewAccount(b, signer, AccountConfig{ReceiptPoll: time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBalances(t *testing.T) {
	b := &fakeBackend{balance: big.NewInt(12_500_000), native: big.NewInt(1e18)}
	a := newTestAccount(t, b)

	usdc, err := a.USDCBalance(context.Background())
	if err != nil {
		t.Fatalf("USDCBalance: %v", err)
	}
	if usdc.Int64() != 12_500_000 {
		t.Errorf("usdc = %s", usdc)
	}
	if *b.calls[0].To != common.HexToAddress(USDCAddress) {
		t.Errorf("balanceOf sent to %s", b.calls[0].To.Hex())
	}

	native, err := a.NativeBalance(context.Background())
	if err != nil || native.Cmp(big.NewInt(1e18)) != 0 {
		t.Errorf("native = %v, %v", native, err)
	}
}

func TestEnsureAllowanceSkipsWhenSufficient(t *testing.T) {
	b := &fakeBackend{allowance: big.NewInt(100)}
	a := newTestAccount(t, b)

	hash, err := a.EnsureAllowance(context.Background(), common.HexToAddress(crypto.CTFExchangeAddress), big.NewInt(100))
	if err != nil {
		t.Fatalf("EnsureAllowance: %v", err)
	}
	if hash != (common.Hash{}) || len(b.sent) != 0 {
		t.Fatalf("expected no tx, got %d", len(b.sent))
	}
}

func TestEnsureAllowanceApproves(t *testing.T) {
	b := &fakeBackend{allowance: big.NewInt(0), gasPrice: big.NewInt(30e9), pending: 2, status: types.ReceiptStatusSuccessful}
	a := newTestAccount(t, b)
	spender := common.HexToAddress(crypto.CTFExchangeAddress)

	hash, err := a.EnsureAllowance(context.Background(), spender, big.NewInt(1))
	if err != nil {
		t.Fatalf("EnsureAllowance: %v", err)
	}
	if len(b.sent) != 1 {
		t.Fatalf("sent %d txs, want 1", len(b.sent))
	}
	tx := b.sent[0]
	if hash != tx.Hash() {
		t.Errorf("hash mismatch")
	}
	if *tx.To() != common.HexToAddress(USDCAddress) {
		t.Errorf("approve sent to %s", tx.To().Hex())
	}
	if tx.GasPrice().Cmp(big.NewInt(90e9)) != 0 || tx.Gas() != 500_000 {
		t.Errorf("gas price %s gas %d", tx.GasPrice(), tx.Gas())
	}
	args, err := accountABI.Methods["approve"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != spender || args[1].(*big.Int).Cmp(MaxUint256) != 0 {
		t.Errorf("approve args = %v", args)
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), tx)
	if err != nil || from != a.Address() {
		t.Errorf("sender = %s, %v", from.Hex(), err)
	}
}

func TestRedeem(t *testing.T) {
	b := &fakeBackend{gasPrice: big.NewInt(1), status: types.ReceiptStatusSuccessful}
	a := newTestAccount(t, b)
	cond := common.HexToHash("0xab01").Hex()

	if _, err := a.Redeem(context.Background(), cond); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if len(b.sent) != 1 {
		t.Fatalf("sent %d txs", len(b.sent))
	}
	tx := b.sent[0]
	if *tx.To() != common.HexToAddress(CTFAddress) {
		t.Errorf("redeem sent to %s", tx.To().Hex())
	}
	args, err := accountABI.Methods["redeemPositions"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != common.HexToAddress(USDCAddress) {
		t.Errorf("collateral = %v", args[0])
	}
	if args[1].([32]byte) != ([32]byte{}) {
		t.Errorf("parent collection = %x", args[1])
	}
	if common.Hash(args[2].([32]byte)) != common.HexToHash(cond) {
		t.Errorf("condition = %x", args[2])
	}
	sets := args[3].([]*big.Int)
	if len(sets) != 2 || sets[0].Int64() != 1 || sets[1].Int64() != 2 {
		t.Errorf("index sets = %v", sets)
	}
}

func TestRedeemPreflightFailureSendsNothing(t *testing.T) {
	b := &fakeBackend{callErr: errors.New("execution reverted")}
	a := newTestAccount(t, b)
	if _, err := a.Redeem(context.Background(), "0x01"); err == nil {
		t.Fatal("expected preflight error")
	}
	if len(b.sent) != 0 {
		t.Fatalf("sent %d txs after failed preflight", len(b.sent))
	}
}

func TestRedeemReverted(t *testing.T) {
	b := &fakeBackend{gasPrice: big.NewInt(1), status: types.ReceiptStatusFailed}
	a := newTestAccount(t, b)
	if _, err := a.Redeem(context.Background(), "0x01"); err == nil {
		t.Fatal("expected revert error")
	}
}
