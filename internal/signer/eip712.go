package signer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	ExchangeDomainName = "Polymarket CTF Exchange"
	ClobAuthDomainName = "ClobAuthDomain"
	DomainVersion      = "1"

	// ClobAuthMessage is the fixed statement signed for wallet-tier auth.
	ClobAuthMessage = "This message attests that I control the given wallet"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	// used when the domain has no verifying contract (ClobAuth)
	domainTypeHashNoContract = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId)"))

	// OrderTypeHash is keccak256 of the exchange Order type definition.
	OrderTypeHash = crypto.Keccak256Hash([]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"))
)

// Order represents the struct to be signed
type Order struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

// DomainSeparator computes hashStruct(EIP712Domain). verifyingContract is left
// out of the type when nil.
func DomainSeparator(name, version string, chainID int64, verifyingContract *common.Address) common.Hash {
	words := 4
	if verifyingContract != nil {
		words = 5
	}
	data := make([]byte, 32*words)
	if verifyingContract != nil {
		copy(data[0:32], domainTypeHash.Bytes())
	} else {
		copy(data[0:32], domainTypeHashNoContract.Bytes())
	}
	copy(data[32:64], crypto.Keccak256([]byte(name)))
	copy(data[64:96], crypto.Keccak256([]byte(version)))
	copy(data[96:128], math.U256Bytes(big.NewInt(chainID)))
	if verifyingContract != nil {
		copy(data[128+12:160], verifyingContract.Bytes())
	}
	return crypto.Keccak256Hash(data)
}

// TypedDataDigest returns keccak256("\x19\x01" ‖ domainSeparator ‖ structHash).
func TypedDataDigest(domainSeparator common.Hash, structHash []byte) []byte {
	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash)
}

// HashOrder calculates hashStruct(order) with a fixed 13 word ABI layout.
func HashOrder(order *Order) []byte {
	data := make([]byte, 32*13)

	copy(data[0:32], OrderTypeHash.Bytes())
	putUint256(data[32:64], order.Salt)
	copy(data[64+12:96], order.Maker.Bytes())
	copy(data[96+12:128], order.Signer.Bytes())
	copy(data[128+12:160], order.Taker.Bytes())
	putUint256(data[160:192], order.TokenID)
	putUint256(data[192:224], order.MakerAmount)
	putUint256(data[224:256], order.TakerAmount)
	putUint256(data[256:288], order.Expiration)
	putUint256(data[288:320], order.Nonce)
	putUint256(data[320:352], order.FeeRateBps)
	data[383] = order.Side
	data[415] = order.SignatureType

	return crypto.Keccak256(data)
}

// nil encodes as zero
func putUint256(dst []byte, v *big.Int) {
	if v != nil {
		copy(dst, math.U256Bytes(new(big.Int).Set(v)))
	}
}

// ClobAuthTypedData builds the wallet-tier attestation message.
func ClobAuthTypedData(address common.Address, timestamp string, nonce uint64, chainID int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    ClobAuthDomainName,
			Version: DomainVersion,
			ChainId: (*math.HexOrDecimal256)(big.NewInt(chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"address":   address.Hex(),
			"timestamp": timestamp,
			"nonce":     (*math.HexOrDecimal256)(new(big.Int).SetUint64(nonce)),
			"message":   ClobAuthMessage,
		},
	}
}

// ClobAuthDigest returns the EIP-712 digest of the ClobAuth message.
func ClobAuthDigest(address common.Address, timestamp string, nonce uint64, chainID int64) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(ClobAuthTypedData(address, timestamp, nonce, chainID))
	if err != nil {
		return nil, fmt.Errorf("hash clob auth: %w", err)
	}
	return hash, nil
}
