package stream

import (
	"strconv"
)

type EventType string

const (
	EventBook           EventType = "book"
	EventPriceChange    EventType = "price_change"
	EventLastTradePrice EventType = "last_trade_price"
	EventBestBidAsk     EventType = "best_bid_ask"
	EventTrade          EventType = "trade"
	EventOrder          EventType = "order"
	EventFill           EventType = "fill"
	EventUnknown        EventType = "unknown"
)

// Event is the closed set of messages delivered to listeners.
type Event interface {
	Type() EventType
	isEvent()
}

type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type BookEvent struct {
	EventType string       `json:"event_type"`
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp string       `json:"timestamp"`
	Hash      string       `json:"hash"`
}

func (e BookEvent) TimestampMillis() (int64, error) {
	return strconv.ParseInt(e.Timestamp, 10, 64)
}

type PriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	Hash    string `json:"hash"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

type PriceChangeEvent struct {
	EventType    string        `json:"event_type"`
	Market       string        `json:"market"`
	PriceChanges []PriceChange `json:"price_changes"`
	Timestamp    string        `json:"timestamp"`
}

func (e PriceChangeEvent) TimestampMillis() (int64, error) {
	return strconv.ParseInt(e.Timestamp, 10, 64)
}

type LastTradePriceEvent struct {
	EventType  string `json:"event_type"`
	AssetID    string `json:"asset_id"`
	Market     string `json:"market"`
	Price      string `json:"price"`
	Side       string `json:"side"`
	Size       string `json:"size"`
	FeeRateBps string `json:"fee_rate_bps"`
	Timestamp  string `json:"timestamp"`
}

type BestBidAskEvent struct {
	EventType string `json:"event_type"`
	Market    string `json:"market"`
	AssetID   string `json:"asset_id"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Spread    string `json:"spread"`
	Timestamp string `json:"timestamp"`
}

type MakerOrder struct {
	AssetID       string `json:"asset_id"`
	MatchedAmount string `json:"matched_amount"`
	OrderID       string `json:"order_id"`
	Outcome       string `json:"outcome"`
	Owner         string `json:"owner"`
	Price         string `json:"price"`
}

type TradeEvent struct {
	EventType    string       `json:"event_type"`
	AssetID      string       `json:"asset_id"`
	Market       string       `json:"market"`
	ID           string       `json:"id"`
	Price        string       `json:"price"`
	Side         string       `json:"side"`
	Size         string       `json:"size"`
	Outcome      string       `json:"outcome"`
	Owner        string       `json:"owner"`
	TradeOwner   string       `json:"trade_owner"`
	TakerOrderID string       `json:"taker_order_id"`
	MakerOrders  []MakerOrder `json:"maker_orders"`
	Status       string       `json:"status"`
	Kind         string       `json:"type"`
	Timestamp    string       `json:"timestamp"`
	Matchtime    string       `json:"matchtime"`
	LastUpdate   string       `json:"last_update"`
}

type OrderEvent struct {
	EventType       string   `json:"event_type"`
	AssetID         string   `json:"asset_id"`
	Market          string   `json:"market"`
	ID              string   `json:"id"`
	Price           string   `json:"price"`
	Side            string   `json:"side"`
	OriginalSize    string   `json:"original_size"`
	SizeMatched     string   `json:"size_matched"`
	Outcome         string   `json:"outcome"`
	Owner           string   `json:"owner"`
	OrderOwner      string   `json:"order_owner"`
	Kind            string   `json:"type"`
	Timestamp       string   `json:"timestamp"`
	AssociateTrades []string `json:"associate_trades"`
}

type FillEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	OrderID   string `json:"order_id"`
	TradeID   string `json:"trade_id"`
	Price     string `json:"price"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// UnknownEvent carries anything without a typed mapping. Fields is nil when
// the payload was not a JSON object.
type UnknownEvent struct {
	EventType string         `json:"event_type,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Raw       string         `json:"raw"`
}

func (BookEvent) Type() EventType           { return EventBook }
func (PriceChangeEvent) Type() EventType    { return EventPriceChange }
func (LastTradePriceEvent) Type() EventType { return EventLastTradePrice }
func (BestBidAskEvent) Type() EventType     { return EventBestBidAsk }
func (TradeEvent) Type() EventType          { return EventTrade }
func (OrderEvent) Type() EventType          { return EventOrder }
func (FillEvent) Type() EventType           { return EventFill }
func (UnknownEvent) Type() EventType        { return EventUnknown }

func (BookEvent) isEvent()           {}
func (PriceChangeEvent) isEvent()    {}
func (LastTradePriceEvent) isEvent() {}
func (BestBidAskEvent) isEvent()     {}
func (TradeEvent) isEvent()          {}
func (OrderEvent) isEvent()          {}
func (FillEvent) isEvent()           {}
func (UnknownEvent) isEvent()        {}
