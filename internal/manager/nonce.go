package manager

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/GoPolymarket/polyclob/internal/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// noncesSelector is keccak256("nonces(address)")[:4].
var noncesSelector = crypto.Keccak256([]byte("nonces(address)"))[:4]

// NonceManager caches the exchange nonce per maker. Order.Nonce must equal the
// contract's nonces(maker) for the order to be fillable.
type NonceManager struct {
	caller   ethereum.ContractCaller
	exchange common.Address

	mu     sync.RWMutex
	nonces map[common.Address]*big.Int
}

func NewNonceManager(caller ethereum.ContractCaller, exchange common.Address) *NonceManager {
	return &NonceManager{
		caller:   caller,
		exchange: exchange,
		nonces:   make(map[common.Address]*big.Int),
	}
}

// DialNonceManager connects to rpcURL. The returned close func releases the
// RPC client.
func DialNonceManager(ctx context.Context, rpcURL string, exchange common.Address) (*NonceManager, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to eth client: %w", err)
	}
	return NewNonceManager(client, exchange), client.Close, nil
}

// Nonce returns the cached nonce, fetching it on first use.
func (m *NonceManager) Nonce(ctx context.Context, maker common.Address) (*big.Int, error) {
	m.mu.RLock()
	cached, ok := m.nonces[maker]
	m.mu.RUnlock()
	if ok {
		return new(big.Int).Set(cached), nil
	}
	return m.Sync(ctx, maker)
}

// Sync reads nonces(maker) from the exchange contract and refreshes the cache.
func (m *NonceManager) Sync(ctx context.Context, maker common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, noncesSelector...)
	data = append(data, common.LeftPadBytes(maker.Bytes(), 32)...)

	exchange := m.exchange
	res, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &exchange, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call nonces(%s): %w", maker.Hex(), err)
	}
	if len(res) != 32 {
		return nil, fmt.Errorf("call nonces(%s): unexpected %d byte result", maker.Hex(), len(res))
	}
	val := new(big.Int).SetBytes(res)

	m.mu.Lock()
	m.nonces[maker] = val
	m.mu.Unlock()

	logger.Debug("Synced exchange nonce", "maker", maker.Hex(), "nonce", val.String())
	return new(big.Int).Set(val), nil
}

// Invalidate bumps the cached nonce after an on-chain incrementNonce so new
// orders use it before the transaction is mined.
func (m *NonceManager) Invalidate(maker common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.nonces[maker]; ok {
		m.nonces[maker] = new(big.Int).Add(val, big.NewInt(1))
	}
}
