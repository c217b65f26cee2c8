package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Kind classifies ledger errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindReplay
	KindIntegrity
	KindTiming
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindReplay:
		return "replay"
	case KindIntegrity:
		return "integrity"
	case KindTiming:
		return "timing"
	default:
		return "unknown"
	}
}

var (
	// authorization
	ErrUnauthorized         = errors.New("ledger: caller is not authorized")
	ErrIntentNotCancellable = errors.New("ledger: intent is no longer cancellable")

	// validation
	ErrInvalidAmount        = errors.New("ledger: amount must be positive")
	ErrDeadlinePassed       = errors.New("ledger: deadline must be in the future")
	ErrInvalidViewingKey    = errors.New("ledger: viewing key must be a 65-byte uncompressed public key")
	ErrSameToken            = errors.New("ledger: tokenIn and tokenOut must differ")
	ErrIntentNotFound       = errors.New("ledger: intent not found")
	ErrIntentAlreadySettled = errors.New("ledger: intent already settled")
	ErrIntentExpired        = errors.New("ledger: intent deadline passed")
	ErrInvalidMatch         = errors.New("ledger: internal match is inconsistent")
	ErrDirectionMismatch    = errors.New("ledger: zeroForOne does not match token order")
	ErrInsufficientBalance  = errors.New("ledger: insufficient balance")
	ErrSwapFailed           = errors.New("ledger: amm swap failed")
	ErrReleaseOutOfWindow   = errors.New("ledger: release time outside delay window")
	ErrReleaseMismatch      = errors.New("ledger: release does not match a settled intent")
	ErrDuplicateRelease     = errors.New("ledger: duplicate release")
	ErrUnreleasedIntent     = errors.New("ledger: settled intent has no release")
	ErrReleaseNotFound      = errors.New("ledger: release not found")
	ErrZeroAddress          = errors.New("ledger: zero address")

	// replay
	ErrBatchAlreadyProcessed  = errors.New("ledger: batch already processed")
	ErrReleaseAlreadyExecuted = errors.New("ledger: release already executed")

	// integrity
	ErrInvalidSignature = errors.New("ledger: batch signature does not recover to the enclave signer")

	// timing
	ErrReleaseNotReady = errors.New("ledger: release not ready")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthorized, KindAuthorization},
	{ErrIntentNotCancellable, KindAuthorization},
	{ErrBatchAlreadyProcessed, KindReplay},
	{ErrReleaseAlreadyExecuted, KindReplay},
	{ErrInvalidSignature, KindIntegrity},
	{ErrReleaseNotReady, KindTiming},
	{ErrInvalidAmount, KindValidation},
	{ErrDeadlinePassed, KindValidation},
	{ErrInvalidViewingKey, KindValidation},
	{ErrSameToken, KindValidation},
	{ErrIntentNotFound, KindValidation},
	{ErrIntentAlreadySettled, KindValidation},
	{ErrIntentExpired, KindValidation},
	{ErrInvalidMatch, KindValidation},
	{ErrDirectionMismatch, KindValidation},
	{ErrInsufficientBalance, KindValidation},
	{ErrSwapFailed, KindValidation},
	{ErrReleaseOutOfWindow, KindValidation},
	{ErrReleaseMismatch, KindValidation},
	{ErrDuplicateRelease, KindValidation},
	{ErrUnreleasedIntent, KindValidation},
	{ErrReleaseNotFound, KindValidation},
	{ErrZeroAddress, KindValidation},
}

// IntentError attributes a batch failure to the intent that caused it.
type IntentError struct {
	IntentID common.Hash
	Err      error
}

func (e *IntentError) Error() string {
	return fmt.Sprintf("intent %s: %v", e.IntentID.Hex(), e.Err)
}

func (e *IntentError) Unwrap() error { return e.Err }

func intentErr(id common.Hash, err error) error {
	if err == nil {
		return nil
	}
	return &IntentError{IntentID: id, Err: err}
}

// KindOf returns the class of a ledger error, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
