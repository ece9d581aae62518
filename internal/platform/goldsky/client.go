package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// DefaultConditionsURL is the public conditions subgraph for the Polymarket
// conditional token framework on Polygon.
const DefaultConditionsURL = "https://api.goldsky.com/api/public/project_cl6mb8i9h0003e201j6li0diw/subgraphs/polymarket-conditions/prod/gn"

// Client is a GraphQL client for the Goldsky subgraph indexer, used to read
// condition payouts reported by the CTF oracle.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Goldsky GraphQL client.
func NewClient(graphqlURL, apiKey string, timeout time.Duration) *Client {
	if graphqlURL == "" {
		graphqlURL = DefaultConditionsURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Condition is the indexed state of one CTF condition. Payout values are
// kept as the decimal strings the subgraph returns.
type Condition struct {
	ID                string
	PositionIDs       []string
	PayoutNumerators  []string
	PayoutDenominator string
}

// bigIntString accepts a BigInt rendered either as a JSON string or number.
type bigIntString string

func (b *bigIntString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*b = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*b = bigIntString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*b = bigIntString(n.String())
	return nil
}

// FetchCondition returns the indexed condition for conditionID. The bool is
// false when the subgraph has no record of it yet.
func (c *Client) FetchCondition(ctx context.Context, conditionID string) (Condition, bool, error) {
	query := `
		query Condition($id: ID!) {
			condition(id: $id) {
				id
				positionIds
				payoutNumerators
				payoutDenominator
			}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{"id": conditionID})
	if err != nil {
		return Condition{}, false, fmt.Errorf("goldsky: fetch condition: %w", err)
	}

	var result struct {
		Condition *struct {
			ID                string         `json:"id"`
			PositionIDs       []bigIntString `json:"positionIds"`
			PayoutNumerators  []bigIntString `json:"payoutNumerators"`
			PayoutDenominator bigIntString   `json:"payoutDenominator"`
		} `json:"condition"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return Condition{}, false, fmt.Errorf("goldsky: decode condition: %w", err)
	}
	if result.Condition == nil {
		return Condition{}, false, nil
	}

	cond := Condition{
		ID:                result.Condition.ID,
		PayoutDenominator: string(result.Condition.PayoutDenominator),
	}
	for _, p := range result.Condition.PositionIDs {
		cond.PositionIDs = append(cond.PositionIDs, string(p))
	}
	for _, n := range result.Condition.PayoutNumerators {
		cond.PayoutNumerators = append(cond.PayoutNumerators, string(n))
	}
	return cond, true, nil
}

// FetchLatestBlock returns the latest block number indexed by the Goldsky
// subgraph. This is useful for monitoring indexing lag.
func (c *Client) FetchLatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("goldsky: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("goldsky: decode latest block: %w", err)
	}

	return result.Meta.Block.Number, nil
}

// doQuery executes a GraphQL query against the Goldsky endpoint and returns
// the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
