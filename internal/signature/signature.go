// Package signature couples cryptographic order validity to live
// protocol state: a signature is only good while its order is unconsumed
// and, for sells, while the maker still controls the asset. That is why
// verification runs at match time rather than once at signing time.
package signature

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/seismic-labs/exchange-api/internal/types"
)

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrIdentityMismatch   = errors.New("recovered signer does not match order maker")
	ErrOrderConsumed      = errors.New("order already cancelled or finalized")
	ErrNotOwnerOrApproved = errors.New("maker does not own or control the asset")
)

// TerminalChecker reports whether an order digest has reached a terminal
// state. Satisfied by the order registry.
type TerminalChecker interface {
	IsTerminal(digest common.Hash) (bool, error)
}

// OwnershipOracle answers live ownership/approval queries for an asset.
type OwnershipOracle interface {
	IsApprovedOrOwner(identity common.Address, asset types.AssetRef) (bool, error)
}

// Verifier checks order signatures against the registry and the
// ownership oracle.
type Verifier struct {
	registry TerminalChecker
	oracle   OwnershipOracle
}

func NewVerifier(registry TerminalChecker, oracle OwnershipOracle) *Verifier {
	return &Verifier{
		registry: registry,
		oracle:   oracle,
	}
}

// RecoverSigner recovers the identity that produced sig over digest.
// sig is the 65-byte r||s||v form; both v in {0,1} and v in {27,28} are
// accepted.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}

	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery id %d",
			ErrMalformedSignature, sig[64])
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// Verify returns nil only if the signature recovers to the order's
// maker, the order is not cancelled or finalized, and (for sell orders)
// the maker currently owns or controls the asset.
func (v *Verifier) Verify(order *types.Order, digest common.Hash, sig []byte) error {
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if signer != order.Maker {
		return fmt.Errorf("%w: recovered %s, maker %s",
			ErrIdentityMismatch, signer.Hex(), order.Maker.Hex())
	}

	terminal, err := v.registry.IsTerminal(digest)
	if err != nil {
		return fmt.Errorf("failed to check order state: %w", err)
	}
	if terminal {
		return ErrOrderConsumed
	}

	if order.Side == types.SideSell {
		ok, err := v.oracle.IsApprovedOrOwner(order.Maker, order.Asset)
		if err != nil {
			return fmt.Errorf("ownership query failed: %w", err)
		}
		if !ok {
			return ErrNotOwnerOrApproved
		}
	}

	return nil
}

// Valid is the boolean form of Verify for read-only callers.
func (v *Verifier) Valid(order *types.Order, digest common.Hash, sig []byte) bool {
	return v.Verify(order, digest, sig) == nil
}
