package market

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Level represents a single price level in the orderbook
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Orderbook is the in-memory state of one asset.
type Orderbook struct {
	AssetID     string
	Market      string
	Hash        string
	Bids        []Level // Sorted High to Low
	Asks        []Level // Sorted Low to High
	LastTrade   *Trade
	LastUpdated time.Time
	mu          sync.RWMutex
}

// Trade is the last match reported for an asset.
type Trade struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Side  string          `json:"side"`
	At    time.Time       `json:"at"`
}

func NewOrderbook(assetID string) *Orderbook {
	return &Orderbook{
		AssetID: assetID,
		Bids:    make([]Level, 0),
		Asks:    make([]Level, 0),
	}
}

// Snapshot replaces the entire book state. Zero-size levels are dropped.
func (ob *Orderbook) Snapshot(bids, asks []Level, hash string, at time.Time) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.Bids = sortLevels(bids, true)
	ob.Asks = sortLevels(asks, false)
	ob.Hash = hash
	ob.LastUpdated = at
}

// Update processes a price/size update
// size 0 means remove level
func (ob *Orderbook) Update(side, priceStr, sizeStr string, at time.Time) error {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return fmt.Errorf("price %q: %w", priceStr, err)
	}
	size, err := decimal.NewFromString(sizeStr)
	if err != nil {
		return fmt.Errorf("size %q: %w", sizeStr, err)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	switch side {
	case "BUY":
		ob.updateLevel(&ob.Bids, price, size, true)
	case "SELL":
		ob.updateLevel(&ob.Asks, price, size, false)
	default:
		return fmt.Errorf("unknown side %q", side)
	}
	ob.LastUpdated = at
	return nil
}

func (ob *Orderbook) updateLevel(levels *[]Level, price, size decimal.Decimal, descending bool) {
	// Linear scan. Books here are shallow enough that a slice beats a tree.
	idx := -1
	for i, l := range *levels {
		if l.Price.Equal(price) {
			idx = i
			break
		}
	}

	if size.IsZero() {
		if idx != -1 {
			*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
		}
		return
	}

	if idx != -1 {
		(*levels)[idx].Size = size
		return
	}
	*levels = sortLevels(append(*levels, Level{Price: price, Size: size}), descending)
}

func sortLevels(levels []Level, descending bool) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		if !l.Size.IsZero() {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// GetCopy returns a safe copy of the current state (Thread-safe read)
func (ob *Orderbook) GetCopy() (bids, asks []Level) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids = make([]Level, len(ob.Bids))
	copy(bids, ob.Bids)
	asks = make([]Level, len(ob.Asks))
	copy(asks, ob.Asks)
	return
}

func (ob *Orderbook) BestBid() (Level, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.Bids) == 0 {
		return Level{}, false
	}
	return ob.Bids[0], true
}

func (ob *Orderbook) BestAsk() (Level, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.Asks) == 0 {
		return Level{}, false
	}
	return ob.Asks[0], true
}

// Spread is best ask minus best bid; false when either side is empty.
func (ob *Orderbook) Spread() (decimal.Decimal, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// View is a JSON-friendly copy of a book.
type View struct {
	AssetID     string    `json:"asset_id"`
	Market      string    `json:"market"`
	Hash        string    `json:"hash"`
	Bids        []Level   `json:"bids"`
	Asks        []Level   `json:"asks"`
	LastTrade   *Trade    `json:"last_trade,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

func (ob *Orderbook) View() View {
	bids, asks := ob.GetCopy()
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return View{
		AssetID:     ob.AssetID,
		Market:      ob.Market,
		Hash:        ob.Hash,
		Bids:        bids,
		Asks:        asks,
		LastTrade:   ob.LastTrade,
		LastUpdated: ob.LastUpdated,
	}
}
