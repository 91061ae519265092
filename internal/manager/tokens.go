// Package manager caches per-token market parameters and exchange nonces.
package manager

import (
	"context"
	"sync"
)

// MarketInfoSource fetches the per-token values that never change during a
// session.
type MarketInfoSource interface {
	FetchTickSize(ctx context.Context, tokenID string) (string, error)
	FetchNegRisk(ctx context.Context, tokenID string) (bool, error)
	FetchFeeRateBps(ctx context.Context, tokenID string) (uint64, error)
}

type tokenInfo struct {
	tickSize   *string
	negRisk    *bool
	feeRateBps *uint64
}

// TokenCache memoizes MarketInfoSource lookups. Failed lookups are not cached.
type TokenCache struct {
	src MarketInfoSource

	mu     sync.RWMutex
	tokens map[string]*tokenInfo
}

func NewTokenCache(src MarketInfoSource) *TokenCache {
	return &TokenCache{src: src, tokens: make(map[string]*tokenInfo)}
}

func (c *TokenCache) TickSize(ctx context.Context, tokenID string) (string, error) {
	if v := c.read(tokenID, func(i *tokenInfo) bool { return i.tickSize != nil }); v != nil {
		return *v.tickSize, nil
	}
	tick, err := c.src.FetchTickSize(ctx, tokenID)
	if err != nil {
		return "", err
	}
	c.write(tokenID, func(i *tokenInfo) { i.tickSize = &tick })
	return tick, nil
}

func (c *TokenCache) NegRisk(ctx context.Context, tokenID string) (bool, error) {
	if v := c.read(tokenID, func(i *tokenInfo) bool { return i.negRisk != nil }); v != nil {
		return *v.negRisk, nil
	}
	neg, err := c.src.FetchNegRisk(ctx, tokenID)
	if err != nil {
		return false, err
	}
	c.write(tokenID, func(i *tokenInfo) { i.negRisk = &neg })
	return neg, nil
}

func (c *TokenCache) FeeRateBps(ctx context.Context, tokenID string) (uint64, error) {
	if v := c.read(tokenID, func(i *tokenInfo) bool { return i.feeRateBps != nil }); v != nil {
		return *v.feeRateBps, nil
	}
	fee, err := c.src.FetchFeeRateBps(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	c.write(tokenID, func(i *tokenInfo) { i.feeRateBps = &fee })
	return fee, nil
}

// Forget drops everything cached for tokenID.
func (c *TokenCache) Forget(tokenID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, tokenID)
}

func (c *TokenCache) read(tokenID string, has func(*tokenInfo) bool) *tokenInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tokens[tokenID]
	if !ok || !has(info) {
		return nil
	}
	cp := *info
	return &cp
}

func (c *TokenCache) write(tokenID string, set func(*tokenInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.tokens[tokenID]
	if !ok {
		info = &tokenInfo{}
		c.tokens[tokenID] = info
	}
	set(info)
}
