// Package order turns trade intents into EIP-712 signed exchange orders.
package order

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/GoPolymarket/polyclob/internal/contracts"
	"github.com/GoPolymarket/polyclob/internal/pkg/metrics"
	"github.com/GoPolymarket/polyclob/internal/signer"
	"github.com/ethereum/go-ethereum/common"
)

type Option func(*Builder) error

func WithSignatureType(t SignatureType) Option {
	return func(b *Builder) error {
		if t > PolyGnosisSafe {
			return fmt.Errorf("unknown signature type %d", t)
		}
		b.sigType = t
		return nil
	}
}

// WithFunder sets the maker address. Empty keeps the signer address.
func WithFunder(addr string) Option {
	return func(b *Builder) error {
		if addr == "" {
			return nil
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid funder address %q", addr)
		}
		b.funder = common.HexToAddress(addr)
		return nil
	}
}

// WithRandom replaces the salt entropy source.
func WithRandom(r io.Reader) Option {
	return func(b *Builder) error {
		b.random = r
		return nil
	}
}

// WithClock sets the time used to reject already expired orders.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) error {
		b.now = now
		return nil
	}
}

// Builder is immutable after construction and safe for concurrent use when
// the default entropy source is used.
type Builder struct {
	signer  *signer.Signer
	sigType SignatureType
	funder  common.Address
	random  io.Reader
	now     func() time.Time
}

func NewBuilder(s *signer.Signer, opts ...Option) (*Builder, error) {
	if s == nil {
		return nil, fmt.Errorf("signer is required")
	}
	b := &Builder{
		signer:  s,
		sigType: EOA,
		funder:  s.Address(),
		random:  rand.Reader,
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Builder) Funder() common.Address { return b.funder }

func (b *Builder) SignatureType() SignatureType { return b.sigType }

// CreateOrder validates intent, assembles the order and signs it under the
// exchange domain selected by opts.
func (b *Builder) CreateOrder(intent Intent, opts Options) (*SignedOrder, error) {
	if err := validateIntent(intent, b.now()); err != nil {
		return nil, err
	}

	salt, err := b.newSalt()
	if err != nil {
		return nil, err
	}

	domain, err := contracts.Resolve(b.signer.ChainID(), opts.NegRisk)
	if err != nil {
		return nil, err
	}

	makerAmount, takerAmount := Amounts(intent.Side, intent.Price, intent.Size)
	if isZeroAmount(makerAmount) || isZeroAmount(takerAmount) {
		return nil, &ValidationError{Field: "size", Reason: "rounds to a zero maker/taker amount"}
	}

	taker := common.Address{}
	if intent.Taker != "" {
		taker = common.HexToAddress(intent.Taker)
	}

	order := &SignedOrder{
		Salt:          salt,
		Maker:         b.funder.Hex(),
		Signer:        b.signer.Address().Hex(),
		Taker:         taker.Hex(),
		TokenID:       intent.TokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    strconv.FormatUint(intent.Expiration, 10),
		Nonce:         strconv.FormatUint(intent.Nonce, 10),
		FeeRateBps:    strconv.FormatUint(intent.FeeRateBps, 10),
		Side:          intent.Side,
		SignatureType: b.sigType,
	}

	typed, err := order.Typed()
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	sep := signer.DomainSeparator(signer.ExchangeDomainName, signer.DomainVersion, b.signer.ChainID(), &domain.Exchange)
	order.Signature, err = b.signer.SignOrder(sep, typed)
	if err != nil {
		return nil, err
	}

	metrics.OrdersSigned.WithLabelValues(intent.Side.String(), strconv.FormatBool(opts.NegRisk)).Inc()
	return order, nil
}

// CreateMarketOrder signs a market intent as a non-expiring order. The amount
// is used as the order size and the order type defaults to FOK.
func (b *Builder) CreateMarketOrder(intent MarketIntent, opts Options) (*SignedOrder, OrderType, error) {
	orderType := intent.OrderType
	if orderType == "" {
		orderType = FOK
	}
	if orderType != FOK && orderType != FAK {
		return nil, "", &ValidationError{Field: "orderType", Reason: fmt.Sprintf("%s is not a market order type", orderType)}
	}

	order, err := b.CreateOrder(Intent{
		TokenID:    intent.TokenID,
		Price:      intent.Price,
		Size:       intent.Amount,
		Side:       intent.Side,
		FeeRateBps: intent.FeeRateBps,
		Nonce:      intent.Nonce,
		Expiration: 0,
		Taker:      intent.Taker,
	}, opts)
	if err != nil {
		return nil, "", err
	}
	return order, orderType, nil
}

// newSalt draws 256 random bits and renders them in base 10.
func (b *Builder) newSalt() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(b.random, buf); err != nil {
		return "", fmt.Errorf("read salt entropy: %w", err)
	}
	return new(big.Int).SetBytes(buf).String(), nil
}
