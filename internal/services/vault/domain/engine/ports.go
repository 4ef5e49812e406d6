package engine

import (
	"context"
	"errors"
)

// TransferRequest is one ledger movement.
type TransferRequest struct {
	From     string
	To       string
	Amount   uint64
	Currency string
	Memo     string
}

// Ledger moves funds out of vault wallets.
type Ledger interface {
	// Transfer returns the block index the ledger recorded the movement at.
	Transfer(ctx context.Context, req TransferRequest) (uint64, error)
}

// CanisterManager controls the canister hosting the vault.
type CanisterManager interface {
	Version(ctx context.Context, canisterID string) (string, error)
	Upgrade(ctx context.Context, canisterID string, wasm []byte, version string) error
	UpdateControllers(ctx context.Context, canisterID string, controllers []string) error
}

// WasmRepository serves the modules the vault may upgrade to.
type WasmRepository interface {
	GetByVersion(ctx context.Context, version string) ([]byte, error)
	AvailableVersions(ctx context.Context) ([]string, error)
}

// RejectionError is returned by a collaborator that refused a call on its
// merits, such as a ledger reporting insufficient funds. Any other error is
// treated as the collaborator being unavailable.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// Reject builds a RejectionError.
func Reject(reason string) error {
	return &RejectionError{Reason: reason}
}

// IsRejection reports whether err carries a RejectionError.
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}
