package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/GoPolymarket/polyclob/internal/clob"
	"github.com/GoPolymarket/polyclob/internal/order"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OrderRequest is the JSON body accepted by the order routes. Price and size
// are decimal strings so no precision is lost before signing.
type OrderRequest struct {
	TokenID    string  `json:"token_id" binding:"required"`
	Price      string  `json:"price" binding:"required"`
	Size       string  `json:"size" binding:"required"`
	Side       string  `json:"side" binding:"required,oneof=BUY SELL buy sell"`
	OrderType  string  `json:"order_type,omitempty"` // GTC/GTD/FAK/FOK
	Expiration uint64  `json:"expiration,omitempty"` // unix seconds (GTD)
	FeeRateBps uint64  `json:"fee_rate_bps,omitempty"`
	Nonce      *uint64 `json:"nonce,omitempty"`
	Taker      string  `json:"taker,omitempty"`
}

type SignResponse struct {
	Order     *order.SignedOrder `json:"order"`
	OrderType order.OrderType    `json:"order_type"`
}

type PlaceResponse struct {
	Order  *order.SignedOrder `json:"order"`
	Result *clob.PostResult   `json:"result"`
}

// OrderClient is the part of the REST client the service drives.
type OrderClient interface {
	CreateOrder(ctx context.Context, intent order.Intent) (*order.SignedOrder, error)
	CreateAndPostOrder(ctx context.Context, intent order.Intent, orderType order.OrderType) (*order.SignedOrder, *clob.PostResult, error)
	CancelOrder(ctx context.Context, orderID string) (*clob.CancelResult, error)
	CancelAll(ctx context.Context) (*clob.CancelResult, error)
}

// NonceSource supplies the on-chain exchange nonce of a maker.
type NonceSource interface {
	Nonce(ctx context.Context, maker common.Address) (*big.Int, error)
}

type OrderService struct {
	client OrderClient
	risk   *RiskEngine
	nonces NonceSource
	maker  common.Address
	log    *slog.Logger
}

// NewOrderService wires the pre-trade checks and the optional nonce source in
// front of client. risk and nonces may be nil.
func NewOrderService(client OrderClient, risk *RiskEngine, nonces NonceSource, maker common.Address) *OrderService {
	return &OrderService{
		client: client,
		risk:   risk,
		nonces: nonces,
		maker:  maker,
		log:    logger.With("component", "orders"),
	}
}

// Sign builds and signs req without posting it.
func (s *OrderService) Sign(ctx context.Context, req OrderRequest) (*SignResponse, error) {
	intent, orderType, err := s.intent(ctx, req)
	if err != nil {
		return nil, err
	}
	o, err := s.client.CreateOrder(ctx, intent)
	if err != nil {
		return nil, err
	}
	return &SignResponse{Order: o, OrderType: orderType}, nil
}

// Place builds, signs and posts req.
func (s *OrderService) Place(ctx context.Context, req OrderRequest) (*PlaceResponse, error) {
	intent, orderType, err := s.intent(ctx, req)
	if err != nil {
		return nil, err
	}
	o, res, err := s.client.CreateAndPostOrder(ctx, intent, orderType)
	if err != nil {
		return nil, err
	}
	if res != nil && !res.Success {
		s.log.Warn("Order refused by exchange", "token_id", intent.TokenID, "error", res.ErrorMsg)
	}
	return &PlaceResponse{Order: o, Result: res}, nil
}

func (s *OrderService) Cancel(ctx context.Context, orderID string) (*clob.CancelResult, error) {
	return s.client.CancelOrder(ctx, orderID)
}

func (s *OrderService) CancelAll(ctx context.Context) (*clob.CancelResult, error) {
	return s.client.CancelAll(ctx)
}

func (s *OrderService) intent(ctx context.Context, req OrderRequest) (order.Intent, order.OrderType, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return order.Intent{}, "", &order.ValidationError{Field: "price", Reason: fmt.Sprintf("%q is not a decimal", req.Price)}
	}
	size, err := decimal.NewFromString(req.Size)
	if err != nil {
		return order.Intent{}, "", &order.ValidationError{Field: "size", Reason: fmt.Sprintf("%q is not a decimal", req.Size)}
	}
	side, err := order.ParseSide(req.Side)
	if err != nil {
		return order.Intent{}, "", &order.ValidationError{Field: "side", Reason: err.Error()}
	}
	orderType := order.OrderType(req.OrderType)
	if orderType == "" {
		orderType = order.GTC
	}
	if !orderType.Valid() {
		return order.Intent{}, "", apperrors.NewInvalidRequest(fmt.Sprintf("unknown order type %q", req.OrderType))
	}
	if orderType == order.GTD && req.Expiration == 0 {
		return order.Intent{}, "", &order.ValidationError{Field: "expiration", Reason: "required for GTD orders"}
	}

	intent := order.Intent{
		TokenID:    req.TokenID,
		Price:      price,
		Size:       size,
		Side:       side,
		FeeRateBps: req.FeeRateBps,
		Expiration: req.Expiration,
		Taker:      req.Taker,
	}

	if s.risk != nil {
		if err := s.risk.CheckOrder(intent); err != nil {
			return order.Intent{}, "", err
		}
	}

	switch {
	case req.Nonce != nil:
		intent.Nonce = *req.Nonce
	case s.nonces != nil:
		n, err := s.nonces.Nonce(ctx, s.maker)
		if err != nil {
			return order.Intent{}, "", apperrors.New(apperrors.ErrUpstream, "read exchange nonce", err)
		}
		if !n.IsUint64() {
			return order.Intent{}, "", apperrors.New(apperrors.ErrUpstream, fmt.Sprintf("exchange nonce %s out of range", n), nil)
		}
		intent.Nonce = n.Uint64()
	}
	return intent, orderType, nil
}
