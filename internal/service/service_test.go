package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/GoPolymarket/polyclob/internal/clob"
	"github.com/GoPolymarket/polyclob/internal/config"
	"github.com/GoPolymarket/polyclob/internal/market"
	"github.com/GoPolymarket/polyclob/internal/order"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	intents   []order.Intent
	posted    []order.OrderType
	result    *clob.PostResult
	cancelled []string
}

func (f *fakeClient) CreateOrder(_ context.Context, in order.Intent) (*order.SignedOrder, error) {
	f.intents = append(f.intents, in)
	return &order.SignedOrder{TokenID: in.TokenID, Side: in.Side, Signature: "0xsig"}, nil
}

func (f *fakeClient) CreateAndPostOrder(ctx context.Context, in order.Intent, t order.OrderType) (*order.SignedOrder, *clob.PostResult, error) {
	o, _ := f.CreateOrder(ctx, in)
	f.posted = append(f.posted, t)
	return o, f.result, nil
}

func (f *fakeClient) CancelOrder(_ context.Context, id string) (*clob.CancelResult, error) {
	f.cancelled = append(f.cancelled, id)
	return &clob.CancelResult{Canceled: []string{id}}, nil
}

func (f *fakeClient) CancelAll(context.Context) (*clob.CancelResult, error) {
	return &clob.CancelResult{}, nil
}

type fixedNonce struct {
	n   *big.Int
	err error
}

func (f fixedNonce) Nonce(context.Context, common.Address) (*big.Int, error) { return f.n, f.err }

func mustLevel(price, size string) market.Level {
	return market.Level{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func TestSignParsesRequest(t *testing.T) {
	fc := &fakeClient{}
	svc := NewOrderService(fc, nil, fixedNonce{n: big.NewInt(4)}, common.Address{})

	resp, err := svc.Sign(context.Background(), OrderRequest{
		TokenID: "101", Price: "0.55", Size: "12.5", Side: "sell",
	})
	require.NoError(t, err)
	assert.Equal(t, order.GTC, resp.OrderType)
	assert.Equal(t, "0xsig", resp.Order.Signature)

	require.Len(t, fc.intents, 1)
	in := fc.intents[0]
	assert.Equal(t, order.Sell, in.Side)
	assert.True(t, in.Price.Equal(decimal.RequireFromString("0.55")))
	assert.True(t, in.Size.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, uint64(4), in.Nonce)
}

func TestExplicitNonceWins(t *testing.T) {
	fc := &fakeClient{}
	svc := NewOrderService(fc, nil, fixedNonce{err: errors.New("rpc down")}, common.Address{})

	n := uint64(9)
	_, err := svc.Sign(context.Background(), OrderRequest{TokenID: "1", Price: "0.5", Size: "1", Side: "BUY", Nonce: &n})
	require.NoError(t, err)
	assert.Equal(t, uint64(9), fc.intents[0].Nonce)

	_, err = svc.Sign(context.Background(), OrderRequest{TokenID: "1", Price: "0.5", Size: "1", Side: "BUY"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrUpstream))
}

func TestRequestValidation(t *testing.T) {
	svc := NewOrderService(&fakeClient{}, nil, nil, common.Address{})
	ctx := context.Background()

	_, err := svc.Sign(ctx, OrderRequest{TokenID: "1", Price: "abc", Size: "1", Side: "BUY"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidOrder))

	_, err = svc.Sign(ctx, OrderRequest{TokenID: "1", Price: "0.5", Size: "1", Side: "HOLD"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidOrder))

	_, err = svc.Sign(ctx, OrderRequest{TokenID: "1", Price: "0.5", Size: "1", Side: "BUY", OrderType: "IOC"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))

	_, err = svc.Place(ctx, OrderRequest{TokenID: "1", Price: "0.5", Size: "1", Side: "BUY", OrderType: "GTD"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidOrder))
}

func TestPlacePassesOrderType(t *testing.T) {
	fc := &fakeClient{result: &clob.PostResult{Success: true, OrderID: "0xabc"}}
	svc := NewOrderService(fc, nil, nil, common.Address{})

	resp, err := svc.Place(context.Background(), OrderRequest{
		TokenID: "1", Price: "0.5", Size: "1", Side: "BUY", OrderType: "FOK",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", resp.Result.OrderID)
	assert.Equal(t, []order.OrderType{order.FOK}, fc.posted)

	_, err = svc.Cancel(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc"}, fc.cancelled)
}

func TestRiskRestrictedAndMaxValue(t *testing.T) {
	risk := NewRiskEngine(config.RiskConfig{MaxOrderValue: 10, RestrictedTokens: []string{"666"}}, nil)
	fc := &fakeClient{}
	svc := NewOrderService(fc, risk, nil, common.Address{})
	ctx := context.Background()

	_, err := svc.Sign(ctx, OrderRequest{TokenID: "666", Price: "0.5", Size: "1", Side: "BUY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restricted")

	_, err = svc.Sign(ctx, OrderRequest{TokenID: "1", Price: "0.5", Size: "30", Side: "BUY"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidOrder))

	_, err = svc.Sign(ctx, OrderRequest{TokenID: "1", Price: "0.5", Size: "20", Side: "BUY"})
	require.NoError(t, err)
	assert.Len(t, fc.intents, 1)
}

func TestRiskSlippageAgainstMirror(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mirror := market.NewMirror("101")
	book, _ := mirror.Book("101")
	book.Snapshot(
		[]market.Level{mustLevel("0.48", "10")},
		[]market.Level{mustLevel("0.52", "10")},
		"h", now,
	)

	risk := NewRiskEngine(config.RiskConfig{MaxSlippage: 0.05, StaleAfter: 10 * time.Second}, mirror)
	risk.now = func() time.Time { return now.Add(time.Second) }

	buy := func(p string) order.Intent {
		return order.Intent{TokenID: "101", Price: decimal.RequireFromString(p), Size: decimal.NewFromInt(1), Side: order.Buy}
	}
	sell := func(p string) order.Intent {
		return order.Intent{TokenID: "101", Price: decimal.RequireFromString(p), Size: decimal.NewFromInt(1), Side: order.Sell}
	}

	assert.NoError(t, risk.CheckOrder(buy("0.54")))
	assert.Error(t, risk.CheckOrder(buy("0.56")))
	assert.NoError(t, risk.CheckOrder(sell("0.46")))
	assert.Error(t, risk.CheckOrder(sell("0.45")))

	// unknown assets are not checked
	other := buy("0.99")
	other.TokenID = "202"
	assert.NoError(t, risk.CheckOrder(other))

	risk.now = func() time.Time { return now.Add(time.Minute) }
	err := risk.CheckOrder(buy("0.5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than")
}

func TestStaleBookIgnoredWithoutSlippageLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mirror := market.NewMirror("101")
	book, _ := mirror.Book("101")
	book.Snapshot(
		[]market.Level{mustLevel("0.48", "10")},
		[]market.Level{mustLevel("0.52", "10")},
		"h", now,
	)

	risk := NewRiskEngine(config.RiskConfig{StaleAfter: 10 * time.Second}, mirror)
	risk.now = func() time.Time { return now.Add(time.Hour) }

	in := order.Intent{TokenID: "101", Price: decimal.RequireFromString("0.9"), Size: decimal.NewFromInt(1), Side: order.Buy}
	assert.NoError(t, risk.CheckOrder(in))
}
