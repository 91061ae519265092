package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/GoPolymarket/polyclob/internal/contracts"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivateKey = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	testTokenID    = "52114319501245915516055106046884209969926127482827954674443846427813813222426"
)

func newBuilder(t *testing.T, chainID int64, opts ...Option) *Builder {
	s, err := signer.NewSigner(testPrivateKey, chainID)
	require.NoError(t, err)
	b, err := NewBuilder(s, opts...)
	require.NoError(t, err)
	return b
}

func limitIntent(side Side, price, size string) Intent {
	return Intent{
		TokenID: testTokenID,
		Price:   decimal.RequireFromString(price),
		Size:    decimal.RequireFromString(size),
		Side:    side,
	}
}

func recoverOrderSigner(t *testing.T, o *SignedOrder, chainID int64, negRisk bool) common.Address {
	domain, err := contracts.Resolve(chainID, negRisk)
	require.NoError(t, err)
	typed, err := o.Typed()
	require.NoError(t, err)

	sep := signer.DomainSeparator(signer.ExchangeDomainName, signer.DomainVersion, chainID, &domain.Exchange)
	digest := signer.TypedDataDigest(sep, signer.HashOrder(typed))

	raw := hexutil.MustDecode(o.Signature)
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest, raw)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub)
}

func TestAmountsRounding(t *testing.T) {
	maker, taker := Amounts(Buy, decimal.RequireFromString("0.37"), decimal.RequireFromString("10"))
	assert.Equal(t, "3.700000", maker)
	assert.Equal(t, "10.000000", taker)

	maker, taker = Amounts(Sell, decimal.RequireFromString("0.6"), decimal.RequireFromString("3"))
	assert.Equal(t, "3.000000", maker)
	assert.Equal(t, "1.800000", taker)

	// ties round away from zero
	maker, _ = Amounts(Buy, decimal.RequireFromString("0.5"), decimal.RequireFromString("0.0000005"))
	assert.Equal(t, "0.000000", maker)
	maker, _ = Amounts(Buy, decimal.RequireFromString("0.5"), decimal.RequireFromString("0.000001"))
	assert.Equal(t, "0.000001", maker)
	_, taker = Amounts(Buy, decimal.RequireFromString("0.1"), decimal.RequireFromString("1.0000005"))
	assert.Equal(t, "1.000001", taker)
}

func TestToBaseUnits(t *testing.T) {
	n, err := toBaseUnits("3.700000")
	require.NoError(t, err)
	assert.Equal(t, "3700000", n.String())

	_, err = toBaseUnits("0.0000001")
	assert.Error(t, err)
	_, err = toBaseUnits("-1")
	assert.Error(t, err)
}

func TestCreateOrderBuy(t *testing.T) {
	b := newBuilder(t, contracts.Polygon)

	o, err := b.CreateOrder(limitIntent(Buy, "0.37", "10"), Options{})
	require.NoError(t, err)

	assert.Equal(t, "3.700000", o.MakerAmount)
	assert.Equal(t, "10.000000", o.TakerAmount)
	assert.Equal(t, b.signer.Address().Hex(), o.Maker)
	assert.Equal(t, b.signer.Address().Hex(), o.Signer)
	assert.Equal(t, common.Address{}.Hex(), o.Taker)
	assert.Equal(t, "0", o.Expiration)
	assert.Equal(t, Buy, o.Side)
	assert.Equal(t, EOA, o.SignatureType)
	assert.Len(t, o.Signature, 132)

	assert.Equal(t, b.signer.Address(), recoverOrderSigner(t, o, contracts.Polygon, false))
}

func TestCreateOrderSellNegRisk(t *testing.T) {
	funder := "0x00000000000000000000000000000000000000f1"
	b := newBuilder(t, contracts.Amoy, WithFunder(funder), WithSignatureType(PolyProxy))

	o, err := b.CreateOrder(limitIntent(Sell, "0.6", "3"), Options{NegRisk: true})
	require.NoError(t, err)

	assert.Equal(t, "3.000000", o.MakerAmount)
	assert.Equal(t, "1.800000", o.TakerAmount)
	assert.Equal(t, common.HexToAddress(funder).Hex(), o.Maker)
	assert.Equal(t, PolyProxy, o.SignatureType)

	assert.Equal(t, b.signer.Address(), recoverOrderSigner(t, o, contracts.Amoy, true))
	assert.NotEqual(t, b.signer.Address(), recoverOrderSigner(t, o, contracts.Amoy, false))
}

func TestCreateOrderUnknownChain(t *testing.T) {
	b := newBuilder(t, 1)

	_, err := b.CreateOrder(limitIntent(Buy, "0.5", "1"), Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidChain))
}

func TestSaltUniqueness(t *testing.T) {
	b := newBuilder(t, contracts.Polygon)
	intent := limitIntent(Buy, "0.5", "10")

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		o, err := b.CreateOrder(intent, Options{})
		require.NoError(t, err)
		_, dup := seen[o.Salt]
		require.False(t, dup, "salt collision at %d", i)
		seen[o.Salt] = struct{}{}
	}
}

func TestSaltFromEntropySource(t *testing.T) {
	entropy := bytes.Repeat([]byte{0xff}, 32)
	b := newBuilder(t, contracts.Polygon, WithRandom(bytes.NewReader(entropy)))

	o, err := b.CreateOrder(limitIntent(Buy, "0.5", "1"), Options{})
	require.NoError(t, err)
	// 2^256 - 1
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", o.Salt)

	// exhausted entropy fails instead of signing with a short salt
	_, err = b.CreateOrder(limitIntent(Buy, "0.5", "1"), Options{})
	assert.Error(t, err)
}

func TestCreateOrderValidation(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := newBuilder(t, contracts.Polygon, WithClock(func() time.Time { return now }))

	cases := []struct {
		name   string
		mutate func(*Intent)
		field  string
	}{
		{"zero price", func(i *Intent) { i.Price = decimal.Zero }, "price"},
		{"negative price", func(i *Intent) { i.Price = decimal.RequireFromString("-0.1") }, "price"},
		{"price of one", func(i *Intent) { i.Price = decimal.NewFromInt(1) }, "price"},
		{"zero size", func(i *Intent) { i.Size = decimal.Zero }, "size"},
		{"negative size", func(i *Intent) { i.Size = decimal.RequireFromString("-5") }, "size"},
		{"missing token", func(i *Intent) { i.TokenID = "" }, "tokenId"},
		{"hex token", func(i *Intent) { i.TokenID = "0xabc" }, "tokenId"},
		{"bad side", func(i *Intent) { i.Side = Side(7) }, "side"},
		{"past expiration", func(i *Intent) { i.Expiration = uint64(now.Unix() - 1) }, "expiration"},
		{"bad taker", func(i *Intent) { i.Taker = "nobody" }, "taker"},
		{"size rounds to zero", func(i *Intent) { i.Size = decimal.RequireFromString("0.0000005") }, "size"},
		{"notional rounds to zero", func(i *Intent) {
			i.Price = decimal.RequireFromString("0.001")
			i.Size = decimal.RequireFromString("0.0001")
		}, "size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := limitIntent(Buy, "0.5", "10")
			tc.mutate(&intent)

			_, err := b.CreateOrder(intent, Options{})
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
			assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidOrder))
		})
	}

	future := limitIntent(Buy, "0.5", "10")
	future.Expiration = uint64(now.Unix() + 3600)
	o, err := b.CreateOrder(future, Options{})
	require.NoError(t, err)
	assert.Equal(t, "1700003600", o.Expiration)

	farFuture := limitIntent(Buy, "0.5", "10")
	farFuture.Expiration = math.MaxUint64
	o, err = b.CreateOrder(farFuture, Options{})
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551615", o.Expiration)
}

func TestCreateMarketOrder(t *testing.T) {
	b := newBuilder(t, contracts.Polygon)

	o, orderType, err := b.CreateMarketOrder(MarketIntent{
		TokenID: testTokenID,
		Price:   decimal.RequireFromString("0.55"),
		Amount:  decimal.RequireFromString("20"),
		Side:    Buy,
		Nonce:   3,
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, FOK, orderType)
	assert.Equal(t, "0", o.Expiration)
	assert.Equal(t, "11.000000", o.MakerAmount)
	assert.Equal(t, "20.000000", o.TakerAmount)
	assert.Equal(t, "3", o.Nonce)
	assert.Equal(t, common.Address{}.Hex(), o.Taker)

	_, orderType, err = b.CreateMarketOrder(MarketIntent{
		TokenID:   testTokenID,
		Price:     decimal.RequireFromString("0.55"),
		Amount:    decimal.RequireFromString("1"),
		Side:      Sell,
		OrderType: FAK,
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, FAK, orderType)

	_, _, err = b.CreateMarketOrder(MarketIntent{
		TokenID:   testTokenID,
		Price:     decimal.RequireFromString("0.55"),
		Amount:    decimal.RequireFromString("1"),
		OrderType: GTC,
	}, Options{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "orderType", verr.Field)
}

func TestNewBuilderOptions(t *testing.T) {
	s, err := signer.NewSigner(testPrivateKey, contracts.Polygon)
	require.NoError(t, err)

	_, err = NewBuilder(nil)
	assert.Error(t, err)
	_, err = NewBuilder(s, WithFunder("0x123"))
	assert.Error(t, err)
	_, err = NewBuilder(s, WithSignatureType(SignatureType(9)))
	assert.Error(t, err)

	b, err := NewBuilder(s, WithFunder(""))
	require.NoError(t, err)
	assert.Equal(t, s.Address(), b.Funder())
}

func TestPayloadJSON(t *testing.T) {
	b := newBuilder(t, contracts.Polygon)
	o, err := b.CreateOrder(limitIntent(Sell, "0.6", "3"), Options{})
	require.NoError(t, err)

	raw, err := json.Marshal(NewPayload(o, "api-key", ""))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "api-key", decoded["owner"])
	assert.Equal(t, "GTC", decoded["orderType"])

	wire := decoded["order"].(map[string]any)
	assert.Equal(t, "SELL", wire["side"])
	assert.Equal(t, float64(0), wire["signatureType"])
	assert.Equal(t, testTokenID, wire["tokenId"])
	assert.Equal(t, "3.000000", wire["makerAmount"])

	var back Payload
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, *o, back.Order)
	assert.Equal(t, GTC, back.OrderType)
}
