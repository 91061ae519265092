package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer owns a private key for the lifetime of a session and produces
// recoverable secp256k1 signatures over 32 byte digests.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
}

// NewSigner parses a hex private key (with or without 0x) bound to chainID.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("chain id must be positive, got %d", chainID)
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	publicKeyECDSA, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(*publicKeyECDSA),
		chainID: chainID,
	}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) ChainID() int64 {
	return s.chainID
}

// Sign signs a 32 byte digest and returns r‖s‖v as 0x-prefixed hex, with v
// in {27, 28}.
func (s *Signer) Sign(digest []byte) (string, error) {
	if len(digest) != 32 {
		return "", apperrors.New(apperrors.ErrSigning,
			fmt.Sprintf("digest must be 32 bytes, got %d", len(digest)), nil)
	}
	signature, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", apperrors.New(apperrors.ErrSigning, "sign digest", err)
	}
	// crypto.Sign yields a 0/1 recovery id; the exchange expects 27/28.
	if signature[64] < 27 {
		signature[64] += 27
	}
	return "0x" + common.Bytes2Hex(signature), nil
}

// SignOrder hashes order under the given domain separator and signs it.
func (s *Signer) SignOrder(domainSeparator common.Hash, order *Order) (string, error) {
	if order == nil {
		return "", apperrors.New(apperrors.ErrSigning, "order is required", nil)
	}
	return s.Sign(TypedDataDigest(domainSeparator, HashOrder(order)))
}

// SignClobAuth signs the wallet attestation for timestamp and nonce.
func (s *Signer) SignClobAuth(timestamp string, nonce uint64) (string, error) {
	digest, err := ClobAuthDigest(s.address, timestamp, nonce, s.chainID)
	if err != nil {
		return "", apperrors.New(apperrors.ErrSigning, "build clob auth digest", err)
	}
	return s.Sign(digest)
}
