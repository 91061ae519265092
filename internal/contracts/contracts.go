// Package contracts holds the static exchange contract table keyed by chain
// and market variant.
package contracts

import (
	"sort"

	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

const (
	Polygon int64 = 137
	Amoy    int64 = 80002
)

// Domain is the set of contracts an order is bound to.
type Domain struct {
	Exchange          common.Address
	Collateral        common.Address
	ConditionalTokens common.Address
}

type key struct {
	chainID int64
	negRisk bool
}

var table = map[key]Domain{
	{Polygon, false}: {
		Exchange:          common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
		Collateral:        common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		ConditionalTokens: common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"),
	},
	{Polygon, true}: {
		Exchange:          common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
		Collateral:        common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		ConditionalTokens: common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"),
	},
	{Amoy, false}: {
		Exchange:          common.HexToAddress("0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40"),
		Collateral:        common.HexToAddress("0x9c4e1703476e875070ee25b56a58b008cfb8fa78"),
		ConditionalTokens: common.HexToAddress("0x69308FB512518e39F9b16112fA8d994F4e2Bf8bB"),
	},
	{Amoy, true}: {
		Exchange:          common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"),
		Collateral:        common.HexToAddress("0x9c4e1703476e875070ee25b56a58b008cfb8fa78"),
		ConditionalTokens: common.HexToAddress("0x69308FB512518e39F9b16112fA8d994F4e2Bf8bB"),
	},
}

// Resolve returns the contracts for chainID. Unknown chains are a
// configuration error.
func Resolve(chainID int64, negRisk bool) (Domain, error) {
	d, ok := table[key{chainID, negRisk}]
	if !ok {
		return Domain{}, apperrors.New(apperrors.ErrInvalidChain, "Invalid chainID", nil)
	}
	return d, nil
}

// Chains lists the supported chain ids in ascending order.
func Chains() []int64 {
	seen := make(map[int64]struct{})
	out := make([]int64, 0, 2)
	for k := range table {
		if _, ok := seen[k.chainID]; ok {
			continue
		}
		seen[k.chainID] = struct{}{}
		out = append(out, k.chainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
