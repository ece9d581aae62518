package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Exchange contract addresses on Polygon mainnet.
const (
	CTFExchangeAddress        = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskCTFExchangeAddress = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

const clobAuthMessage = "This message attests that I control the given wallet"

// Signature types understood by the exchange.
const (
	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

// OrderPayload is the exchange Order struct in its signed form. Large
// integers travel as decimal strings.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"` // 0 = BUY, 1 = SELL
	SignatureType int    `json:"signatureType"`
}

var eip712DomainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
}

var orderFields = []apitypes.Type{
	{Name: "salt", Type: "uint256"},
	{Name: "maker", Type: "address"},
	{Name: "signer", Type: "address"},
	{Name: "taker", Type: "address"},
	{Name: "tokenId", Type: "uint256"},
	{Name: "makerAmount", Type: "uint256"},
	{Name: "takerAmount", Type: "uint256"},
	{Name: "expiration", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "feeRateBps", Type: "uint256"},
	{Name: "side", Type: "uint8"},
	{Name: "signatureType", Type: "uint8"},
}

var clobAuthFields = []apitypes.Type{
	{Name: "address", Type: "address"},
	{Name: "timestamp", Type: "string"},
	{Name: "nonce", Type: "uint256"},
	{Name: "message", Type: "string"},
}

// Signer produces EIP-712 signatures for CLOB auth and orders.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (137 for Polygon mainnet).
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the address derived from the private key.
func (s *Signer) Address() common.Address { return s.address }

// ChainID returns the configured chain id.
func (s *Signer) ChainID() int64 { return s.chainID }

// PrivateKey exposes the key for transaction signing.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey { return s.privateKey }

// SignClobAuth signs the ClobAuth message used for L1 API key derivation.
func (s *Signer) SignClobAuth(timestamp, nonce int64) (string, error) {
	return s.signTypedData(s.clobAuthTypedData(timestamp, nonce))
}

func (s *Signer) clobAuthTypedData(timestamp, nonce int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainFields,
			"ClobAuth":     clobAuthFields,
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    "ClobAuthDomain",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(s.chainID),
		},
		Message: apitypes.TypedDataMessage{
			"address":   s.address.Hex(),
			"timestamp": strconv.FormatInt(timestamp, 10),
			"nonce":     big.NewInt(nonce),
			"message":   clobAuthMessage,
		},
	}
}

// SignOrder signs an order for the exchange contract at exchange.
func (s *Signer) SignOrder(order OrderPayload, exchange common.Address) (string, error) {
	td, err := s.orderTypedData(order, exchange)
	if err != nil {
		return "", err
	}
	return s.signTypedData(td)
}

func (s *Signer) orderTypedData(order OrderPayload, exchange common.Address) (apitypes.TypedData, error) {
	msg := apitypes.TypedDataMessage{
		"maker":         order.Maker,
		"signer":        order.Signer,
		"taker":         order.Taker,
		"side":          big.NewInt(int64(order.Side)),
		"signatureType": big.NewInt(int64(order.SignatureType)),
	}
	for field, value := range map[string]string{
		"salt":        order.Salt,
		"tokenId":     order.TokenID,
		"makerAmount": order.MakerAmount,
		"takerAmount": order.TakerAmount,
		"expiration":  order.Expiration,
		"nonce":       order.Nonce,
		"feeRateBps":  order.FeeRateBps,
	} {
		n, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return apitypes.TypedData{}, fmt.Errorf("crypto/signer: invalid %s %q", field, value)
		}
		msg[field] = n
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": append(append([]apitypes.Type{}, eip712DomainFields...),
				apitypes.Type{Name: "verifyingContract", Type: "address"}),
			"Order": orderFields,
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: exchange.Hex(),
		},
		Message: msg,
	}, nil
}

// signTypedData hashes td per EIP-712 and returns a 0x-prefixed 65-byte
// signature with v in {27,28}.
func (s *Signer) signTypedData(td apitypes.TypedData) (string, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: hash typed data: %w", err)
	}
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}
