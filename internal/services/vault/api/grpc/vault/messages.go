package vault

import (
	"encoding/json"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

// TransactionRequest asks for one transaction. Payload is the JSON body of Kind.
type TransactionRequest struct {
	Kind     transaction.Kind `json:"kind"`
	Payload  json.RawMessage  `json:"payload,omitempty"`
	BatchUID string           `json:"batch_uid,omitempty"`
}

type RequestTransactionsRequest struct {
	Requests []TransactionRequest `json:"requests"`
}

// TransactionsResponse returns transactions in the order they were addressed.
type TransactionsResponse struct {
	Transactions []transaction.Transaction `json:"transactions"`
}

type VoteRequest struct {
	TransactionID uint64           `json:"transaction_id"`
	Status        transaction.Vote `json:"status"`
}

type ApproveTransactionsRequest struct {
	Votes []VoteRequest `json:"votes"`
}

type ExecuteRequest struct{}

// ExecuteResponse lists the transactions that reached a terminal state or
// changed during the pass.
type ExecuteResponse struct {
	Transactions []transaction.Transaction `json:"transactions"`
}

// ListTransactionsRequest pages through the log in id order.
// Filter is an AIP-160 expression over id, kind, state, initiator,
// batch_uid, policy_uid, wallet_uid, created_at and modified_at.
type ListTransactionsRequest struct {
	Filter    string `json:"filter,omitempty"`
	PageSize  int32  `json:"page_size,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

type ListTransactionsResponse struct {
	Transactions  []transaction.Transaction `json:"transactions"`
	NextPageToken string                    `json:"next_page_token,omitempty"`
}

// GetStateRequest reads the vault state. A nil Cursor means the latest state.
type GetStateRequest struct {
	Cursor *uint64 `json:"cursor,omitempty"`
}

type GetStateResponse struct {
	State state.VaultState `json:"state"`
}

type ListVersionsRequest struct{}

type ListVersionsResponse struct {
	Versions []string `json:"versions"`
}
