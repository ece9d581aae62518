package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false").
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList decodes a list that Gamma sends either as a JSON array or as a
// string containing a JSON array (outcomes, clobTokenIds).
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = nil
			return nil
		}
		data = []byte(raw)
	}
	var vals []string
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	*s = vals
	return nil
}

// flexNumber holds a number sent as a JSON number or string.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = flexNumber(strings.TrimSpace(s))
		return nil
	}
	*n = flexNumber(data)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by GET /markets on the Gamma API.
type APIMarket struct {
	ID                    string     `json:"id"`
	Question              string     `json:"question"`
	Slug                  string     `json:"slug"`
	ConditionID           string     `json:"conditionId"`
	Outcomes              stringList `json:"outcomes"`
	ClobTokenIDs          stringList `json:"clobTokenIds"`
	OrderPriceMinTickSize flexNumber `json:"orderPriceMinTickSize"`
	NegRisk               flexBool   `json:"negRisk"`
	Active                flexBool   `json:"active"`
	Closed                flexBool   `json:"closed"`
	AcceptingOrders       flexBool   `json:"acceptingOrders"`
	EndDate               string     `json:"endDate"`
}

// ToDomainMarket converts a Gamma market to a domain.Market with the token
// ids ordered by leg: "Up" first, "Down" second. Outcomes that are not
// labelled up/down keep their listed order.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ConditionID: strings.ToLower(m.ConditionID),
		Slug:        m.Slug,
		Question:    m.Question,
		NegRisk:     bool(m.NegRisk),
		TickSize:    canonicalTick(string(m.OrderPriceMinTickSize)),
		Outcomes:    [2]string{"Up", "Down"},
	}

	n := min(len(m.ClobTokenIDs), 2)
	for i := 0; i < n; i++ {
		leg := domain.Leg(i)
		if i < len(m.Outcomes) {
			switch strings.ToLower(strings.TrimSpace(m.Outcomes[i])) {
			case "up", "yes":
				leg = domain.LegUp
			case "down", "no":
				leg = domain.LegDown
			}
			dm.Outcomes[leg] = m.Outcomes[i]
		}
		dm.TokenIDs[leg] = m.ClobTokenIDs[i]
	}

	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		dm.EndDate = &t
	}
	return dm
}

// canonicalTick renders tick sizes like 0.010 or 1e-2 as "0.01".
func canonicalTick(s string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// OrderSummary is one price level of GET /book.
type OrderSummary struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBookSummary is the response of GET /book.
type OrderBookSummary struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Timestamp flexNumber     `json:"timestamp"`
	Bids      []OrderSummary `json:"bids"`
	Asks      []OrderSummary `json:"asks"`
	TickSize  flexNumber     `json:"tick_size"`
	NegRisk   flexBool       `json:"neg_risk"`
}

// ToDomainOrderBook converts levels to floats, dropping unparsable ones.
func (b *OrderBookSummary) ToDomainOrderBook() domain.OrderBook {
	book := domain.OrderBook{
		TokenID:   b.AssetID,
		TickSize:  canonicalTick(string(b.TickSize)),
		Bids:      toLevels(b.Bids),
		Asks:      toLevels(b.Asks),
		Timestamp: parseTimestamp(string(b.Timestamp)),
	}
	return book
}

func toLevels(in []OrderSummary) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, lvl := range in {
		p, err1 := strconv.ParseFloat(lvl.Price, 64)
		s, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}

// parseTimestamp accepts unix seconds, unix milliseconds or RFC3339.
func parseTimestamp(s string) time.Time {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}

// apiOrder is the "order" object of POST /order.
type apiOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// postOrderRequest is the body of POST /order.
type postOrderRequest struct {
	Order     apiOrder `json:"order"`
	Owner     string   `json:"owner"`
	OrderType string   `json:"orderType"`
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// ToDomainOrderResult converts the response to a domain.OrderResult. Only
// a "matched" status counts as filled for fill-or-kill orders.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	return domain.OrderResult{
		Success: r.Success && r.ErrorMsg == "",
		OrderID: r.OrderID,
		Status:  r.Status,
		Message: r.ErrorMsg,
	}
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsSubscribe is the market channel subscription message.
type wsSubscribe struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}

// wsBookMessage is a full book snapshot on the market channel.
type wsBookMessage struct {
	EventType string         `json:"event_type"`
	AssetID   string         `json:"asset_id"`
	Bids      []OrderSummary `json:"bids"`
	Asks      []OrderSummary `json:"asks"`
	Timestamp flexNumber     `json:"timestamp"`
}

// wsPriceChange is one level update. Newer payloads carry the asset id per
// change; older ones only at the top level.
type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

// wsPriceChangeMessage groups level updates.
type wsPriceChangeMessage struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Changes      []wsPriceChange `json:"changes"`
	PriceChanges []wsPriceChange `json:"price_changes"`
	Timestamp    flexNumber      `json:"timestamp"`
}
