package fundme

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/types"
)

// Sentinel errors for common failure scenarios.
var (
	// Ledger errors
	ErrInsufficientContribution = errors.New("fundme: contribution below minimum")
	ErrNotOwner                 = errors.New("fundme: caller is not the owner")
	ErrOracleUnavailable        = oracle.ErrUnavailable
	ErrTransferFailed           = errors.New("fundme: transfer failed")
	ErrIndexOutOfRange          = errors.New("fundme: funder index out of range")
	ErrInvalidInput             = errors.New("fundme: invalid input")

	// Deployment errors
	ErrDeploymentNotFound = errors.New("fundme: deployment not found")
	ErrDeploymentMismatch = errors.New("fundme: store belongs to a different deployment")

	// Store errors
	ErrStoreClosed = errors.New("fundme: store is closed")
)

// BelowMinimumError reports a contribution whose converted value is under
// the floor. It unwraps to ErrInsufficientContribution.
type BelowMinimumError struct {
	Value     *big.Int
	Converted *big.Int
	Minimum   *big.Int
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("fundme: contribution of %s ETH is worth %s USD, minimum is %s USD",
		types.FormatEther(e.Value), types.FormatUSD(e.Converted), types.FormatUSD(e.Minimum))
}

func (e *BelowMinimumError) Unwrap() error { return ErrInsufficientContribution }

// NotOwnerError reports a withdrawal attempted by someone other than the
// owner. It unwraps to ErrNotOwner.
type NotOwnerError struct {
	Caller common.Address
	Owner  common.Address
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("fundme: %s is not the owner", e.Caller.Hex())
}

func (e *NotOwnerError) Unwrap() error { return ErrNotOwner }

// Kind classifies ledger errors for callers that branch on them.
type Kind string

// Error kinds.
const (
	KindNone                     Kind = ""
	KindInsufficientContribution Kind = "insufficient_contribution"
	KindNotOwner                 Kind = "not_owner"
	KindOracleUnavailable        Kind = "oracle_unavailable"
	KindTransferFailed           Kind = "transfer_failed"
	KindIndexOutOfRange          Kind = "index_out_of_range"
	KindInvalidInput             Kind = "invalid_input"
	KindInternal                 Kind = "internal"
)

// KindOf returns the Kind of err, KindNone for nil and KindInternal for
// errors that are not ledger errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInsufficientContribution):
		return KindInsufficientContribution
	case errors.Is(err, ErrNotOwner):
		return KindNotOwner
	case errors.Is(err, ErrOracleUnavailable):
		return KindOracleUnavailable
	case errors.Is(err, ErrTransferFailed):
		return KindTransferFailed
	case errors.Is(err, ErrIndexOutOfRange):
		return KindIndexOutOfRange
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOracleUnavailable) ||
		errors.Is(err, ErrTransferFailed)
}
