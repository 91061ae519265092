package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/GoPolymarket/polyclob/internal/auth"
	"github.com/GoPolymarket/polyclob/internal/order"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
)

// PostResult is the exchange answer to POST /order.
type PostResult struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg"`
	OrderID            string   `json:"orderID"`
	Status             string   `json:"status"`
	TransactionsHashes []string `json:"transactionsHashes"`
}

// CancelResult lists cancelled ids and the reason for each refusal.
type CancelResult struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// PostOrder submits a signed order. The HMAC covers the exact body bytes sent.
func (c *Client) PostOrder(ctx context.Context, o *order.SignedOrder, orderType order.OrderType) (*PostResult, error) {
	a := c.Authenticator()
	if err := a.Require(auth.L2); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperrors.NewInvalidRequest("order is required")
	}
	if orderType != "" && !orderType.Valid() {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("unknown order type %q", orderType))
	}

	payload := order.NewPayload(o, a.Credentials().Key, orderType)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "encode order", err)
	}
	headers, err := a.APIKeyHeaders(auth.Request{Method: http.MethodPost, Path: pathOrder, Body: body})
	if err != nil {
		return nil, err
	}

	var res PostResult
	raw, err := c.do(ctx, call{method: http.MethodPost, path: pathOrder, body: body, headers: headers}, &res)
	c.record(ctx, o, payload.OrderType, &res, raw, err)
	if err != nil {
		return nil, err
	}
	c.log.Info("Order posted", "order_id", res.OrderID, "status", res.Status, "success", res.Success)
	return &res, nil
}

func (c *Client) record(ctx context.Context, o *order.SignedOrder, orderType order.OrderType, res *PostResult, raw []byte, postErr error) {
	if c.recorder == nil {
		return
	}
	status := res.Status
	switch {
	case postErr != nil:
		status = "error"
	case status == "":
		status = "submitted"
	}
	if err := c.recorder.Record(ctx, o, orderType, status, raw); err != nil {
		c.log.Error("Failed to record order", "salt", o.Salt, "error", err)
	}
}

// CreateAndPostOrder resolves the token's neg-risk flag and fee rate, signs
// the order and posts it.
func (c *Client) CreateAndPostOrder(ctx context.Context, intent order.Intent, orderType order.OrderType) (*order.SignedOrder, *PostResult, error) {
	if err := c.Authenticator().Require(auth.L2); err != nil {
		return nil, nil, err
	}
	o, err := c.CreateOrder(ctx, intent)
	if err != nil {
		return nil, nil, err
	}
	res, err := c.PostOrder(ctx, o, orderType)
	return o, res, err
}

// CreateOrder signs intent without posting it.
func (c *Client) CreateOrder(ctx context.Context, intent order.Intent) (*order.SignedOrder, error) {
	if err := c.Authenticator().Require(auth.L1); err != nil {
		return nil, err
	}
	opts, err := c.prepare(ctx, intent.TokenID, &intent.FeeRateBps)
	if err != nil {
		return nil, err
	}
	return c.builder.CreateOrder(intent, opts)
}

// CreateAndPostMarketOrder is CreateAndPostOrder for a market intent.
func (c *Client) CreateAndPostMarketOrder(ctx context.Context, intent order.MarketIntent) (*order.SignedOrder, *PostResult, error) {
	if err := c.Authenticator().Require(auth.L2); err != nil {
		return nil, nil, err
	}
	opts, err := c.prepare(ctx, intent.TokenID, &intent.FeeRateBps)
	if err != nil {
		return nil, nil, err
	}
	o, orderType, err := c.builder.CreateMarketOrder(intent, opts)
	if err != nil {
		return nil, nil, err
	}
	res, err := c.PostOrder(ctx, o, orderType)
	return o, res, err
}

func (c *Client) prepare(ctx context.Context, tokenID string, feeRateBps *uint64) (order.Options, error) {
	if c.builder == nil {
		return order.Options{}, apperrors.New(apperrors.ErrAuthUnavailable, auth.L1AuthUnavailableMessage, nil)
	}
	if tokenID == "" {
		return order.Options{}, &order.ValidationError{Field: "tokenId", Reason: "required"}
	}
	neg, err := c.tokens.NegRisk(ctx, tokenID)
	if err != nil {
		return order.Options{}, err
	}
	if *feeRateBps == 0 {
		fee, err := c.tokens.FeeRateBps(ctx, tokenID)
		if err != nil {
			return order.Options{}, err
		}
		*feeRateBps = fee
	}
	return order.Options{NegRisk: neg}, nil
}

// CancelOrder cancels one order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*CancelResult, error) {
	if err := c.Authenticator().Require(auth.L2); err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, apperrors.NewInvalidRequest("order id is required")
	}
	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "encode cancel", err)
	}
	headers, err := c.l2(http.MethodDelete, pathOrder, body)
	if err != nil {
		return nil, err
	}
	var res CancelResult
	if _, err := c.do(ctx, call{method: http.MethodDelete, path: pathOrder, body: body, headers: headers}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CancelAll cancels every open order of the API key owner.
func (c *Client) CancelAll(ctx context.Context) (*CancelResult, error) {
	headers, err := c.l2(http.MethodDelete, pathCancelAll, nil)
	if err != nil {
		return nil, err
	}
	var res CancelResult
	if _, err := c.do(ctx, call{method: http.MethodDelete, path: pathCancelAll, headers: headers}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
