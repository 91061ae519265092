package clob

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/GoPolymarket/polyclob/internal/auth"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
)

const (
	pathAPIKey                 = "/auth/api-key"
	pathClosedOnly             = "/auth/ban-status/closed-only"
	pathReadonlyAPIKey         = "/auth/readonly-api-key"
	pathReadonlyAPIKeys        = "/auth/readonly-api-keys"
	pathValidateReadonlyAPIKey = "/auth/validate-readonly-api-key"
	pathOrders                 = "/data/orders"
	pathOrderByID              = "/data/order/"
	pathTrades                 = "/data/trades"

	// InitialCursor starts a paginated listing and EndCursor marks its last page.
	InitialCursor = "MA=="
	EndCursor     = "LTE="

	maxPages = 1000
)

// OpenOrderParams filters GET /data/orders. Empty fields are omitted.
type OpenOrderParams struct {
	ID      string
	Market  string
	AssetID string
}

func (p OpenOrderParams) query() map[string]string {
	q := map[string]string{}
	setIf(q, "id", p.ID)
	setIf(q, "market", p.Market)
	setIf(q, "asset_id", p.AssetID)
	return q
}

// TradeParams filters GET /data/trades. Before and After are unix seconds;
// zero omits them.
type TradeParams struct {
	ID           string
	MakerAddress string
	Market       string
	AssetID      string
	Before       int64
	After        int64
}

func (p TradeParams) query() map[string]string {
	q := map[string]string{}
	setIf(q, "id", p.ID)
	setIf(q, "maker_address", p.MakerAddress)
	setIf(q, "market", p.Market)
	setIf(q, "asset_id", p.AssetID)
	if p.Before != 0 {
		q["before"] = strconv.FormatInt(p.Before, 10)
	}
	if p.After != 0 {
		q["after"] = strconv.FormatInt(p.After, 10)
	}
	return q
}

func setIf(q map[string]string, k, v string) {
	if v != "" {
		q[k] = v
	}
}

type OpenOrder struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	Owner           string   `json:"owner"`
	MakerAddress    string   `json:"maker_address"`
	Market          string   `json:"market"`
	AssetID         string   `json:"asset_id"`
	Side            string   `json:"side"`
	OriginalSize    string   `json:"original_size"`
	SizeMatched     string   `json:"size_matched"`
	Price           string   `json:"price"`
	Outcome         string   `json:"outcome"`
	Expiration      string   `json:"expiration"`
	OrderType       string   `json:"order_type"`
	AssociateTrades []string `json:"associate_trades"`
	CreatedAt       int64    `json:"created_at"`
}

type Trade struct {
	ID              string          `json:"id"`
	TakerOrderID    string          `json:"taker_order_id"`
	Market          string          `json:"market"`
	AssetID         string          `json:"asset_id"`
	Side            string          `json:"side"`
	Size            string          `json:"size"`
	FeeRateBps      string          `json:"fee_rate_bps"`
	Price           string          `json:"price"`
	Status          string          `json:"status"`
	MatchTime       string          `json:"match_time"`
	LastUpdate      string          `json:"last_update"`
	Outcome         string          `json:"outcome"`
	Owner           string          `json:"owner"`
	MakerAddress    string          `json:"maker_address"`
	TransactionHash string          `json:"transaction_hash"`
	TraderSide      string          `json:"trader_side"`
	MakerOrders     json.RawMessage `json:"maker_orders,omitempty"`
}

type page[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"next_cursor"`
}

// paginate walks a cursor listing until EndCursor. Every page is signed over
// the bare path; the query string is not part of the HMAC message.
func paginate[T any](ctx context.Context, c *Client, path string, query map[string]string) ([]T, error) {
	var all []T
	cursor := InitialCursor
	for i := 0; i < maxPages; i++ {
		headers, err := c.l2(http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		q := make(map[string]string, len(query)+1)
		for k, v := range query {
			q[k] = v
		}
		q["next_cursor"] = cursor

		var p page[T]
		if _, err := c.do(ctx, call{method: http.MethodGet, path: path, query: q, headers: headers}, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
		if p.NextCursor == "" || p.NextCursor == EndCursor || p.NextCursor == cursor {
			return all, nil
		}
		cursor = p.NextCursor
	}
	return nil, apperrors.New(apperrors.ErrProtocolDecode, path+": pagination did not terminate", nil)
}

// Orders lists the open orders of the API key owner, following every page.
func (c *Client) Orders(ctx context.Context, params OpenOrderParams) ([]OpenOrder, error) {
	return paginate[OpenOrder](ctx, c, pathOrders, params.query())
}

// Order fetches one order by id.
func (c *Client) Order(ctx context.Context, orderID string) (*OpenOrder, error) {
	if err := c.Authenticator().Require(auth.L2); err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, apperrors.NewInvalidRequest("order id is required")
	}
	path := pathOrderByID + orderID
	headers, err := c.l2(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var o OpenOrder
	if _, err := c.do(ctx, call{method: http.MethodGet, path: path, headers: headers}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Trades lists the trades of the API key owner, following every page.
func (c *Client) Trades(ctx context.Context, params TradeParams) ([]Trade, error) {
	return paginate[Trade](ctx, c, pathTrades, params.query())
}

// DeleteAPIKey revokes the key the client is authenticated with.
func (c *Client) DeleteAPIKey(ctx context.Context) error {
	headers, err := c.l2(http.MethodDelete, pathAPIKey, nil)
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, call{method: http.MethodDelete, path: pathAPIKey, headers: headers}, nil); err != nil {
		return err
	}
	c.log.Info("API key deleted", "api_key", c.Authenticator().Credentials().Key)
	return nil
}

// ClosedOnlyMode reports whether the account may only close positions.
func (c *Client) ClosedOnlyMode(ctx context.Context) (bool, error) {
	headers, err := c.l2(http.MethodGet, pathClosedOnly, nil)
	if err != nil {
		return false, err
	}
	var out struct {
		ClosedOnly bool `json:"closed_only"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: pathClosedOnly, headers: headers}, &out); err != nil {
		return false, err
	}
	return out.ClosedOnly, nil
}

// CreateReadonlyAPIKey issues a key that can read but never trade.
func (c *Client) CreateReadonlyAPIKey(ctx context.Context) (string, error) {
	headers, err := c.l2(http.MethodPost, pathReadonlyAPIKey, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		APIKey string `json:"apiKey"`
	}
	if _, err := c.do(ctx, call{method: http.MethodPost, path: pathReadonlyAPIKey, headers: headers}, &out); err != nil {
		return "", err
	}
	if out.APIKey == "" {
		return "", apperrors.New(apperrors.ErrProtocolDecode, "missing apiKey in "+pathReadonlyAPIKey+" response", nil)
	}
	return out.APIKey, nil
}

// ReadonlyAPIKeys lists readonly keys. The exchange answers either a bare
// array or {"apiKeys": [...]}.
func (c *Client) ReadonlyAPIKeys(ctx context.Context) ([]string, error) {
	headers, err := c.l2(http.MethodGet, pathReadonlyAPIKeys, nil)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if _, err := c.do(ctx, call{method: http.MethodGet, path: pathReadonlyAPIKeys, headers: headers}, &raw); err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err == nil {
		return keys, nil
	}
	var wrapped struct {
		APIKeys []string `json:"apiKeys"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, apperrors.New(apperrors.ErrProtocolDecode, "decode "+pathReadonlyAPIKeys+" response", err)
	}
	return wrapped.APIKeys, nil
}

// DeleteReadonlyAPIKey revokes key. The HMAC covers the {"key"} body.
func (c *Client) DeleteReadonlyAPIKey(ctx context.Context, key string) error {
	if err := c.Authenticator().Require(auth.L2); err != nil {
		return err
	}
	if key == "" {
		return apperrors.NewInvalidRequest("key is required")
	}
	body, err := json.Marshal(map[string]string{"key": key})
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "encode readonly key", err)
	}
	headers, err := c.l2(http.MethodDelete, pathReadonlyAPIKey, body)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, call{method: http.MethodDelete, path: pathReadonlyAPIKey, body: body, headers: headers}, nil)
	return err
}

// ValidateReadonlyAPIKey asks the exchange whether key is a readonly key of
// address. It needs no credentials.
func (c *Client) ValidateReadonlyAPIKey(ctx context.Context, address, key string) (bool, error) {
	if address == "" || key == "" {
		return false, apperrors.NewInvalidRequest("address and key are required")
	}
	var raw json.RawMessage
	q := map[string]string{"address": address, "key": key}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: pathValidateReadonlyAPIKey, query: q}, &raw); err != nil {
		return false, err
	}
	var valid bool
	if err := json.Unmarshal(raw, &valid); err == nil {
		return valid, nil
	}
	var wrapped struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return false, apperrors.New(apperrors.ErrProtocolDecode, "decode "+pathValidateReadonlyAPIKey+" response", err)
	}
	return wrapped.Valid, nil
}
