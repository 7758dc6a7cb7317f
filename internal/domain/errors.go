package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuoteUnavailable means neither route could price the trade.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrRiskRejected is matched by every RiskRejectedError.
	ErrRiskRejected = errors.New("risk rejected")
	// ErrInsufficientBalance means a trade needs more than is held.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSubmissionFailed means the trade could not be submitted or confirmed.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrInsufficientConfidence marks signals discarded as noise.
	ErrInsufficientConfidence = errors.New("insufficient confidence")
	// ErrDuplicateSettlement is returned when a trade id was already applied.
	ErrDuplicateSettlement = errors.New("settlement already applied")
	// ErrWalletNotFound is returned for wallets the store has never seen.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrDeadlineExceeded means a trade deadline is not in the future.
	ErrDeadlineExceeded = errors.New("trade deadline exceeded")
)

// Risk rejection reason codes.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonExpired       = "expired"
	ReasonPositionLimit = "position_limit"
	ReasonRiskTier      = "risk_tier"
)

// RiskRejectedError carries the reason code of a risk gate rejection.
type RiskRejectedError struct {
	Reason string
	Detail string
}

func (e *RiskRejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("risk rejected: %s", e.Reason)
	}
	return fmt.Sprintf("risk rejected: %s (%s)", e.Reason, e.Detail)
}

// Is lets errors.Is(err, ErrRiskRejected) match any rejection.
func (e *RiskRejectedError) Is(target error) bool {
	return target == ErrRiskRejected
}

// RiskRejected builds a rejection for reason.
func RiskRejected(reason, detail string) error {
	return &RiskRejectedError{Reason: reason, Detail: detail}
}

// RejectionReason extracts the reason code, or "" when err is not a rejection.
func RejectionReason(err error) string {
	var rejected *RiskRejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	return ""
}
