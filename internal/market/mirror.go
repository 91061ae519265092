// Package market mirrors market-channel books in memory.
package market

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/GoPolymarket/polyclob/internal/stream"
	"github.com/shopspring/decimal"
)

// Mirror applies book snapshots and price changes from the market stream.
// Assets that were never tracked are created on first snapshot.
type Mirror struct {
	mu    sync.RWMutex
	books map[string]*Orderbook
}

var _ stream.Listener = (*Mirror)(nil)
var _ Provider = (*Mirror)(nil)

func NewMirror(assetIDs ...string) *Mirror {
	m := &Mirror{books: make(map[string]*Orderbook, len(assetIDs))}
	for _, id := range assetIDs {
		m.books[id] = NewOrderbook(id)
	}
	return m
}

func (m *Mirror) Book(assetID string) (*Orderbook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ob, ok := m.books[assetID]
	return ob, ok
}

func (m *Mirror) Assets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.books))
	for id := range m.books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Mirror) OnEvent(ev stream.Event) error {
	switch e := ev.(type) {
	case stream.BookEvent:
		return m.applyBook(e)
	case stream.PriceChangeEvent:
		return m.applyPriceChange(e)
	case stream.LastTradePriceEvent:
		return m.applyLastTrade(e)
	default:
		return nil
	}
}

func (m *Mirror) applyBook(e stream.BookEvent) error {
	bids, err := toLevels(e.Bids)
	if err != nil {
		return fmt.Errorf("book %s bids: %w", e.AssetID, err)
	}
	asks, err := toLevels(e.Asks)
	if err != nil {
		return fmt.Errorf("book %s asks: %w", e.AssetID, err)
	}

	ob := m.bookFor(e.AssetID)
	ob.Snapshot(bids, asks, e.Hash, eventTime(e.Timestamp))
	ob.mu.Lock()
	ob.Market = e.Market
	ob.mu.Unlock()
	return nil
}

// applyPriceChange updates known books only. A delta for an asset without a
// snapshot cannot be applied meaningfully.
func (m *Mirror) applyPriceChange(e stream.PriceChangeEvent) error {
	at := eventTime(e.Timestamp)
	var errs []error
	for _, pc := range e.PriceChanges {
		ob, ok := m.Book(pc.AssetID)
		if !ok {
			continue
		}
		if err := ob.Update(pc.Side, pc.Price, pc.Size, at); err != nil {
			errs = append(errs, fmt.Errorf("price change %s: %w", pc.AssetID, err))
			continue
		}
		if pc.Hash != "" {
			ob.mu.Lock()
			ob.Hash = pc.Hash
			ob.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) applyLastTrade(e stream.LastTradePriceEvent) error {
	ob, ok := m.Book(e.AssetID)
	if !ok {
		return nil
	}
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return fmt.Errorf("last trade %s price: %w", e.AssetID, err)
	}
	size, err := decimal.NewFromString(e.Size)
	if err != nil {
		return fmt.Errorf("last trade %s size: %w", e.AssetID, err)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.LastTrade = &Trade{Price: price, Size: size, Side: e.Side, At: eventTime(e.Timestamp)}
	return nil
}

func (m *Mirror) bookFor(assetID string) *Orderbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	ob, ok := m.books[assetID]
	if !ok {
		ob = NewOrderbook(assetID)
		m.books[assetID] = ob
	}
	return ob
}

func toLevels(raw []stream.PriceLevel) ([]Level, error) {
	out := make([]Level, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, Level{Price: price, Size: size})
	}
	return out, nil
}

func eventTime(ms string) time.Time {
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || n <= 0 {
		return time.Now()
	}
	return time.UnixMilli(n)
}
