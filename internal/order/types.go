package order

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/GoPolymarket/polyclob/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Side is encoded as uint8 in the signed struct and as "BUY"/"SELL" on the wire.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", v)
	}
}

func (s Side) MarshalJSON() ([]byte, error) {
	if s != Buy && s != Sell {
		return nil, fmt.Errorf("unknown side %d", uint8(s))
	}
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type SignatureType uint8

const (
	EOA SignatureType = iota
	PolyProxy
	PolyGnosisSafe
)

type OrderType string

const (
	GTC OrderType = "GTC" // good till cancelled
	FOK OrderType = "FOK" // fill or kill
	GTD OrderType = "GTD" // good till date
	FAK OrderType = "FAK" // fill and kill
)

func (t OrderType) Valid() bool {
	switch t {
	case GTC, FOK, GTD, FAK:
		return true
	}
	return false
}

// Intent is a limit order request. Values are copied into the builder, never
// retained.
type Intent struct {
	TokenID    string
	Price      decimal.Decimal
	Size       decimal.Decimal
	Side       Side
	FeeRateBps uint64
	Nonce      uint64
	Expiration uint64 // unix seconds, 0 for none
	Taker      string // empty means the zero address (public order)
}

// MarketIntent spends Amount at a worst acceptable Price.
type MarketIntent struct {
	TokenID    string
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Side       Side
	FeeRateBps uint64
	Nonce      uint64
	Taker      string
	OrderType  OrderType // defaults to FOK
}

type Options struct {
	NegRisk bool
}

// SignedOrder is the wire form of a signed order.
type SignedOrder struct {
	Salt          string        `json:"salt"`
	Maker         string        `json:"maker"`
	Signer        string        `json:"signer"`
	Taker         string        `json:"taker"`
	TokenID       string        `json:"tokenId"`
	MakerAmount   string        `json:"makerAmount"`
	TakerAmount   string        `json:"takerAmount"`
	Expiration    string        `json:"expiration"`
	Nonce         string        `json:"nonce"`
	FeeRateBps    string        `json:"feeRateBps"`
	Side          Side          `json:"side"`
	SignatureType SignatureType `json:"signatureType"`
	Signature     string        `json:"signature"`
}

// Typed converts the wire form into the struct that is hashed and signed.
// Amounts are fixed-point with 6 decimals and hash as integer base units.
func (o *SignedOrder) Typed() (*signer.Order, error) {
	ints := make(map[string]*big.Int, 6)
	for name, v := range map[string]string{
		"salt":       o.Salt,
		"tokenId":    o.TokenID,
		"expiration": o.Expiration,
		"nonce":      o.Nonce,
		"feeRateBps": o.FeeRateBps,
	} {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("%s: not an unsigned integer: %q", name, v)
		}
		ints[name] = n
	}
	maker, err := toBaseUnits(o.MakerAmount)
	if err != nil {
		return nil, fmt.Errorf("makerAmount: %w", err)
	}
	taker, err := toBaseUnits(o.TakerAmount)
	if err != nil {
		return nil, fmt.Errorf("takerAmount: %w", err)
	}

	return &signer.Order{
		Salt:          ints["salt"],
		Maker:         common.HexToAddress(o.Maker),
		Signer:        common.HexToAddress(o.Signer),
		Taker:         common.HexToAddress(o.Taker),
		TokenID:       ints["tokenId"],
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    ints["expiration"],
		Nonce:         ints["nonce"],
		FeeRateBps:    ints["feeRateBps"],
		Side:          uint8(o.Side),
		SignatureType: uint8(o.SignatureType),
	}, nil
}

// Payload is the POST /order request body.
type Payload struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType OrderType   `json:"orderType"`
}

func NewPayload(o *SignedOrder, owner string, orderType OrderType) Payload {
	if orderType == "" {
		orderType = GTC
	}
	return Payload{Order: *o, Owner: owner, OrderType: orderType}
}
