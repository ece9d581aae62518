package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/pairbot/internal/crypto"
	"github.com/alanyoungcy/pairbot/internal/domain"
)

// DefaultClobURL is the public CLOB API root.
const DefaultClobURL = "https://clob.polymarket.com"

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API. Book reads are public; order placement needs a signer
// and L2 credentials.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer

	mu       sync.RWMutex
	hmacAuth *crypto.HMACAuth
}

// NewClobClient creates a new CLOB REST client. signer and auth may be nil
// for read-only use; DeriveAPIKey fills in missing credentials.
func NewClobClient(baseURL string, timeout time.Duration, signer *crypto.Signer, auth *crypto.HMACAuth) *ClobClient {
	if baseURL == "" {
		baseURL = DefaultClobURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		signer:   signer,
		hmacAuth: auth,
	}
}

// Signer returns the order signer, if any.
func (c *ClobClient) Signer() *crypto.Signer { return c.signer }

// HasCredentials reports whether L2 credentials are loaded.
func (c *ClobClient) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hmacAuth.Valid()
}

// OrderBook returns the current book for tokenID.
func (c *ClobClient) OrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.do(ctx, http.MethodGet, "/book?"+params.Encode(), nil, false)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book: %w", err)
	}

	var summary OrderBookSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	book := summary.ToDomainOrderBook()
	if book.TokenID == "" {
		book.TokenID = tokenID
	}
	return book, nil
}

// PostOrder submits a signed order. A response with success=false is
// returned as a result, not an error.
func (c *ClobClient) PostOrder(ctx context.Context, order crypto.OrderPayload, signature string, orderType domain.OrderType) (domain.OrderResult, error) {
	c.mu.RLock()
	owner := ""
	if c.hmacAuth != nil {
		owner = c.hmacAuth.Key
	}
	c.mu.RUnlock()

	salt, _ := strconv.ParseInt(order.Salt, 10, 64)
	side := "BUY"
	if order.Side == 1 {
		side = "SELL"
	}
	req := postOrderRequest{
		Order: apiOrder{
			Salt:          salt,
			Maker:         order.Maker,
			Signer:        order.Signer,
			Taker:         order.Taker,
			TokenID:       order.TokenID,
			MakerAmount:   order.MakerAmount,
			TakerAmount:   order.TakerAmount,
			Expiration:    order.Expiration,
			Nonce:         order.Nonce,
			FeeRateBps:    order.FeeRateBps,
			Side:          side,
			SignatureType: order.SignatureType,
			Signature:     signature,
		},
		Owner:     owner,
		OrderType: string(orderType),
	}

	respBody, err := c.do(ctx, http.MethodPost, "/order", req, true)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return apiResult.ToDomainOrderResult(), nil
}

// DeriveAPIKey runs the L1 auth flow: it signs a ClobAuth message and asks
// the CLOB for the wallet's existing API key, creating one if none exists.
func (c *ClobClient) DeriveAPIKey(ctx context.Context, nonce int64) (*crypto.HMACAuth, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: no signer")
	}
	auth, err := c.l1Auth(ctx, http.MethodGet, "/auth/derive-api-key", nonce)
	if err != nil {
		auth, err = c.l1Auth(ctx, http.MethodPost, "/auth/api-key", nonce)
	}
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.hmacAuth = auth
	c.mu.Unlock()
	return auth, nil
}

func (c *ClobClient) l1Auth(ctx context.Context, method, path string, nonce int64) (*crypto.HMACAuth, error) {
	timestamp := time.Now().Unix()
	sig, err := c.signer.SignClobAuth(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, fmt.Errorf("polymarket/clob: auth %s: %w", path, err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	auth := &crypto.HMACAuth{Key: authResp.APIKey, Secret: authResp.Secret, Passphrase: authResp.Passphrase}
	if !auth.Valid() {
		return nil, fmt.Errorf("polymarket/clob: auth %s: incomplete credentials: %w", path, domain.ErrUnauthorized)
	}
	return auth, nil
}

// do builds, optionally signs (HMAC), sends and reads a CLOB request.
func (c *ClobClient) do(ctx context.Context, method, path string, body any, authenticated bool) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authenticated {
		c.mu.RLock()
		auth := c.hmacAuth
		c.mu.RUnlock()
		if !auth.Valid() || c.signer == nil {
			return nil, fmt.Errorf("missing api credentials: %w", domain.ErrUnauthorized)
		}
		for k, v := range auth.L2Headers(c.signer.Address().Hex(), method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
