// Package codec computes the canonical, domain-separated digest of an
// order. The digest is both the order's identity and the payload its
// maker signs, so it must be deterministic and must never collide across
// deployments or mixed field encodings.
package codec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/seismic-labs/exchange-api/internal/types"
)

const (
	DomainName    = "Seismic Exchange"
	DomainVersion = "1"
)

// Pre-computed type hashes.
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	// Order(address maker,address taker,uint8 side,uint8 saleKind,address collection,uint256 tokenId,uint8 assetKind,uint256 quantity,address paymentToken,uint256 basePrice,uint256 extra,uint256 listingTime,uint256 expirationTime,uint256 salt,uint256 featureFlags,bytes callData,bytes replacementPattern)
	orderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(address maker,address taker,uint8 side,uint8 saleKind,address collection,uint256 tokenId,uint8 assetKind,uint256 quantity,address paymentToken,uint256 basePrice,uint256 extra,uint256 listingTime,uint256 expirationTime,uint256 salt,uint256 featureFlags,bytes callData,bytes replacementPattern)",
	))
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	uint8Type, _   = abi.NewType("uint8", "", nil)
)

// Codec hashes orders for one deployment. The chain id and verifying
// contract are folded into the domain separator so a digest signed for
// one deployment can never be replayed against another.
type Codec struct {
	chainID           *big.Int
	verifyingContract common.Address
	domainSeparator   common.Hash
}

func New(chainID *big.Int, verifyingContract common.Address) *Codec {
	c := &Codec{
		chainID:           chainID,
		verifyingContract: verifyingContract,
	}
	c.domainSeparator = c.hashDomain()
	return c
}

func (c *Codec) hashDomain() common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // keccak256(name)
		{Type: bytes32Type}, // keccak256(version)
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}

	encoded, err := arguments.Pack(
		domainTypeHash,
		crypto.Keccak256Hash([]byte(DomainName)),
		crypto.Keccak256Hash([]byte(DomainVersion)),
		c.chainID,
		c.verifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// hashStruct packs the order's canonical fields. Variable-length fields
// are hashed individually first, so adjacent fields cannot be shifted
// into each other by length games.
func (c *Codec) hashStruct(order *types.Order) common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: addressType}, // maker
		{Type: addressType}, // taker
		{Type: uint8Type},   // side
		{Type: uint8Type},   // saleKind
		{Type: addressType}, // collection
		{Type: uint256Type}, // tokenId
		{Type: uint8Type},   // assetKind
		{Type: uint256Type}, // quantity
		{Type: addressType}, // paymentToken
		{Type: uint256Type}, // basePrice
		{Type: uint256Type}, // extra
		{Type: uint256Type}, // listingTime
		{Type: uint256Type}, // expirationTime
		{Type: uint256Type}, // salt
		{Type: uint256Type}, // featureFlags
		{Type: bytes32Type}, // keccak256(callData)
		{Type: bytes32Type}, // keccak256(replacementPattern)
	}

	encoded, err := arguments.Pack(
		orderTypeHash,
		order.Maker,
		order.Taker,
		uint8(order.Side),
		uint8(order.SaleKind),
		order.Asset.Collection,
		new(big.Int).SetUint64(order.Asset.TokenID),
		uint8(order.Asset.Kind),
		new(big.Int).SetUint64(order.Asset.Quantity),
		order.PaymentToken,
		big.NewInt(order.BasePrice),
		big.NewInt(order.Extra),
		big.NewInt(order.ListingTime),
		big.NewInt(order.ExpirationTime),
		new(big.Int).SetUint64(order.Salt),
		new(big.Int).SetUint64(uint64(order.FeatureFlags)),
		crypto.Keccak256Hash(order.CallData),
		crypto.Keccak256Hash(order.ReplacementPattern),
	)
	if err != nil {
		panic("failed to encode order struct: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// Digest returns the signable hash of the order:
// keccak256("\x19\x01" ++ domainSeparator ++ structHash).
func (c *Codec) Digest(order *types.Order) common.Hash {
	structHash := c.hashStruct(order)

	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, c.domainSeparator.Bytes()...)
	data = append(data, structHash.Bytes()...)

	return crypto.Keccak256Hash(data)
}
