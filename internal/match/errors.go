package match

import (
	"errors"
	"fmt"

	"github.com/seismic-labs/exchange-api/internal/fees"
	"github.com/seismic-labs/exchange-api/internal/ledger"
	"github.com/seismic-labs/exchange-api/internal/registry"
	"github.com/seismic-labs/exchange-api/internal/signature"
	"github.com/seismic-labs/exchange-api/internal/validation"
)

// Code identifies which predicate rejected a match or cancel attempt.
type Code string

const (
	CodeMalformedSignature     Code = "MALFORMED_SIGNATURE"
	CodeInvalidOrderParameters Code = "INVALID_ORDER_PARAMETERS"
	CodeExpired                Code = "EXPIRED"
	CodeNotYetListed           Code = "NOT_YET_LISTED"
	CodeFeatureDisabled        Code = "FEATURE_DISABLED"
	CodeIdentityMismatch       Code = "IDENTITY_MISMATCH"
	CodeOrderAlreadyConsumed   Code = "ORDER_ALREADY_CONSUMED"
	CodeNotOwnerOrApproved     Code = "NOT_OWNER_OR_APPROVED"
	CodeOrdersIncompatible     Code = "ORDERS_INCOMPATIBLE"
	CodeAssetFlagged           Code = "ASSET_FLAGGED_FRAUDULENT"
	CodeReputationTooLow       Code = "REPUTATION_TOO_LOW"
	CodeInsufficientFunds      Code = "INSUFFICIENT_FUNDS"
	CodeTransferFailed         Code = "TRANSFER_FAILED"
	CodeNotMaker               Code = "NOT_MAKER"
	CodeAlreadyTerminal        Code = "ALREADY_TERMINAL"
	CodeArithmeticOverflow     Code = "ARITHMETIC_OVERFLOW"
	CodeNoMatchingOffer        Code = "NO_MATCHING_OFFER"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Error is the structured failure surfaced to callers: which order side
// failed and which predicate rejected it, with the underlying cause for
// debugging.
type Error struct {
	Code Code
	// Side is "buy", "sell" or "" when the failure is not attributable
	// to one order.
	Side string
	Err  error
}

func (e *Error) Error() string {
	if e.Side != "" {
		return fmt.Sprintf("%s (%s order): %v", e.Code, e.Side, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, side string, err error) *Error {
	return &Error{Code: code, Side: side, Err: err}
}

// CodeOf extracts the failure code from an error, or CodeInternal.
func CodeOf(err error) Code {
	var matchErr *Error
	if errors.As(err, &matchErr) {
		return matchErr.Code
	}
	return CodeInternal
}

// parameterError maps a validation failure to its taxonomy code.
func parameterError(side string, err error) *Error {
	switch {
	case errors.Is(err, validation.ErrExpired):
		return newError(CodeExpired, side, err)
	case errors.Is(err, validation.ErrNotYetListed):
		return newError(CodeNotYetListed, side, err)
	case errors.Is(err, validation.ErrFeatureDisabled):
		return newError(CodeFeatureDisabled, side, err)
	default:
		return newError(CodeInvalidOrderParameters, side, err)
	}
}

// verifyError maps a signature verification failure to its taxonomy code.
func verifyError(side string, err error) *Error {
	switch {
	case errors.Is(err, signature.ErrMalformedSignature):
		return newError(CodeMalformedSignature, side, err)
	case errors.Is(err, signature.ErrIdentityMismatch):
		return newError(CodeIdentityMismatch, side, err)
	case errors.Is(err, signature.ErrOrderConsumed):
		return newError(CodeOrderAlreadyConsumed, side, err)
	case errors.Is(err, signature.ErrNotOwnerOrApproved):
		return newError(CodeNotOwnerOrApproved, side, err)
	default:
		return newError(CodeInternal, side, err)
	}
}

// settlementError maps a failure inside the settlement transaction.
func settlementError(err error) error {
	var matchErr *Error
	switch {
	case errors.As(err, &matchErr):
		return matchErr
	case errors.Is(err, registry.ErrAlreadyTerminal):
		return newError(CodeOrderAlreadyConsumed, "", err)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return newError(CodeInsufficientFunds, "", err)
	case errors.Is(err, ledger.ErrInsufficientAsset), errors.Is(err, ledger.ErrNotOwner):
		return newError(CodeTransferFailed, "", err)
	case errors.Is(err, fees.ErrOverflow):
		return newError(CodeArithmeticOverflow, "", err)
	default:
		return newError(CodeTransferFailed, "", err)
	}
}
