package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/sharedvault/internal/platform/timeouts"
	vaultv1 "github.com/louisbranch/sharedvault/internal/services/vault/api/grpc/vault"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
)

// VaultClient is the part of the vault gRPC client the tools call.
type VaultClient interface {
	RequestTransactions(ctx context.Context, in *vaultv1.RequestTransactionsRequest, opts ...grpc.CallOption) (*vaultv1.TransactionsResponse, error)
	ApproveTransactions(ctx context.Context, in *vaultv1.ApproveTransactionsRequest, opts ...grpc.CallOption) (*vaultv1.TransactionsResponse, error)
	Execute(ctx context.Context, in *vaultv1.ExecuteRequest, opts ...grpc.CallOption) (*vaultv1.ExecuteResponse, error)
	ListTransactions(ctx context.Context, in *vaultv1.ListTransactionsRequest, opts ...grpc.CallOption) (*vaultv1.ListTransactionsResponse, error)
	GetState(ctx context.Context, in *vaultv1.GetStateRequest, opts ...grpc.CallOption) (*vaultv1.GetStateResponse, error)
	ListVersions(ctx context.Context, in *vaultv1.ListVersionsRequest, opts ...grpc.CallOption) (*vaultv1.ListVersionsResponse, error)
}

var _ VaultClient = (*vaultv1.Client)(nil)

// RequestInput is one requested transaction.
type RequestInput struct {
	Kind     string         `json:"kind" jsonschema:"transaction kind, such as wallet.create or transfer"`
	Payload  map[string]any `json:"payload,omitempty" jsonschema:"kind-specific fields"`
	BatchUID string         `json:"batch_uid,omitempty" jsonschema:"optional batch shared by configuration changes that succeed or fail together"`
}

// RequestTransactionsInput represents the MCP tool input for requesting transactions.
type RequestTransactionsInput struct {
	Requests []RequestInput `json:"requests" jsonschema:"transactions to request, created atomically"`
}

// VoteInput is one vote on a transaction.
type VoteInput struct {
	TransactionID uint64 `json:"transaction_id" jsonschema:"transaction identifier"`
	Status        string `json:"status" jsonschema:"APPROVED, REJECTED or CANCELED"`
}

// ApproveTransactionsInput represents the MCP tool input for voting.
type ApproveTransactionsInput struct {
	Votes []VoteInput `json:"votes" jsonschema:"votes to record, applied atomically"`
}

type ExecuteInput struct{}

// ListTransactionsInput represents the MCP tool input for listing the log.
type ListTransactionsInput struct {
	Filter    string `json:"filter,omitempty" jsonschema:"AIP-160 filter, e.g. state = \"PENDING\""`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"maximum transactions to return"`
	PageToken string `json:"page_token,omitempty" jsonschema:"token from a previous page"`
}

// GetStateInput represents the MCP tool input for reading vault state.
type GetStateInput struct {
	Cursor *uint64 `json:"cursor,omitempty" jsonschema:"optional transaction id to read the state as of"`
}

type ListVersionsInput struct{}

// VoteEntry is a recorded vote.
type VoteEntry struct {
	Signer    string `json:"signer"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// TransactionEntry is a readable transaction.
type TransactionEntry struct {
	ID           uint64         `json:"id"`
	Kind         string         `json:"kind"`
	State        string         `json:"state"`
	Initiator    string         `json:"initiator"`
	Payload      map[string]any `json:"payload"`
	Votes        []VoteEntry    `json:"votes"`
	Threshold    *int           `json:"threshold,omitempty"`
	BatchUID     string         `json:"batch_uid,omitempty"`
	PolicyUID    string         `json:"policy_uid,omitempty"`
	Memo         string         `json:"memo,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	BlockIndex   *uint64        `json:"block_index,omitempty"`
	CreatedAt    string         `json:"created_at"`
	ModifiedAt   string         `json:"modified_at"`
}

// TransactionsResult represents the MCP tool output for transaction lists.
type TransactionsResult struct {
	Transactions  []TransactionEntry `json:"transactions"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type MemberEntry struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	State  string `json:"state"`
}

type WalletEntry struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
}

type PolicyEntry struct {
	UID             string   `json:"uid"`
	MemberThreshold *int     `json:"member_threshold,omitempty"`
	AmountThreshold uint64   `json:"amount_threshold"`
	Wallets         []string `json:"wallets"`
	Currency        string   `json:"currency,omitempty"`
}

// StateResult represents the MCP tool output for vault state.
type StateResult struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Quorum      int           `json:"quorum"`
	Members     []MemberEntry `json:"members"`
	Wallets     []WalletEntry `json:"wallets"`
	Policies    []PolicyEntry `json:"policies"`
	Controllers []string      `json:"controllers"`
}

// VersionsResult represents the MCP tool output for available versions.
type VersionsResult struct {
	Versions []string `json:"versions"`
}

func RequestTransactionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vault_request_transactions",
		Description: "Requests vault transactions as the configured member; either all are created or none",
	}
}

func ApproveTransactionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vault_approve_transactions",
		Description: "Approves, rejects or cancels vault transactions as the configured member",
	}
}

func ExecuteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vault_execute",
		Description: "Executes every approved vault transaction and returns the ones that changed",
	}
}

func ListTransactionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vault_list_transactions",
		Description: "Lists vault transactions in id order with an optional filter",
	}
}

func GetStateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vault_get_state",
		Description: "Returns the vault configuration, optionally as of a transaction id",
	}
}

func ListVersionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vault_list_versions",
		Description: "Lists the module versions a version.upgrade may target",
	}
}

// RequestTransactionsHandler forwards transaction requests to the vault.
func RequestTransactionsHandler(client VaultClient) mcp.ToolHandlerFor[RequestTransactionsInput, TransactionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RequestTransactionsInput) (*mcp.CallToolResult, TransactionsResult, error) {
		requests := make([]vaultv1.TransactionRequest, 0, len(input.Requests))
		for i, req := range input.Requests {
			var payload json.RawMessage
			if len(req.Payload) > 0 {
				data, err := json.Marshal(req.Payload)
				if err != nil {
					return nil, TransactionsResult{}, fmt.Errorf("encode request %d payload: %w", i, err)
				}
				payload = data
			}
			requests = append(requests, vaultv1.TransactionRequest{
				Kind:     transaction.Kind(req.Kind),
				Payload:  payload,
				BatchUID: req.BatchUID,
			})
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		defer cancel()
		response, err := client.RequestTransactions(runCtx, &vaultv1.RequestTransactionsRequest{Requests: requests})
		if err != nil {
			return nil, TransactionsResult{}, fmt.Errorf("request transactions failed: %w", err)
		}
		result, err := transactionsResult(response.Transactions, "")
		return nil, result, err
	}
}

// ApproveTransactionsHandler forwards votes to the vault.
func ApproveTransactionsHandler(client VaultClient) mcp.ToolHandlerFor[ApproveTransactionsInput, TransactionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ApproveTransactionsInput) (*mcp.CallToolResult, TransactionsResult, error) {
		votes := make([]vaultv1.VoteRequest, len(input.Votes))
		for i, vote := range input.Votes {
			votes[i] = vaultv1.VoteRequest{TransactionID: vote.TransactionID, Status: transaction.Vote(vote.Status)}
		}

		runCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		defer cancel()
		response, err := client.ApproveTransactions(runCtx, &vaultv1.ApproveTransactionsRequest{Votes: votes})
		if err != nil {
			return nil, TransactionsResult{}, fmt.Errorf("approve transactions failed: %w", err)
		}
		result, err := transactionsResult(response.Transactions, "")
		return nil, result, err
	}
}

// ExecuteHandler runs an executor pass.
func ExecuteHandler(client VaultClient) mcp.ToolHandlerFor[ExecuteInput, TransactionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ExecuteInput) (*mcp.CallToolResult, TransactionsResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, timeouts.Execute)
		defer cancel()
		response, err := client.Execute(runCtx, &vaultv1.ExecuteRequest{})
		if err != nil {
			return nil, TransactionsResult{}, fmt.Errorf("execute failed: %w", err)
		}
		result, err := transactionsResult(response.Transactions, "")
		return nil, result, err
	}
}

// ListTransactionsHandler reads one page of the log.
func ListTransactionsHandler(client VaultClient) mcp.ToolHandlerFor[ListTransactionsInput, TransactionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListTransactionsInput) (*mcp.CallToolResult, TransactionsResult, error) {
		if input.PageSize < 0 {
			return nil, TransactionsResult{}, fmt.Errorf("page_size must be non-negative")
		}
		runCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		defer cancel()
		response, err := client.ListTransactions(runCtx, &vaultv1.ListTransactionsRequest{
			Filter:    input.Filter,
			PageSize:  int32(input.PageSize),
			PageToken: input.PageToken,
		})
		if err != nil {
			return nil, TransactionsResult{}, fmt.Errorf("list transactions failed: %w", err)
		}
		result, err := transactionsResult(response.Transactions, response.NextPageToken)
		return nil, result, err
	}
}

// GetStateHandler reads the vault state.
func GetStateHandler(client VaultClient) mcp.ToolHandlerFor[GetStateInput, StateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetStateInput) (*mcp.CallToolResult, StateResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		defer cancel()
		response, err := client.GetState(runCtx, &vaultv1.GetStateRequest{Cursor: input.Cursor})
		if err != nil {
			return nil, StateResult{}, fmt.Errorf("get state failed: %w", err)
		}
		return nil, stateResult(response.State), nil
	}
}

// ListVersionsHandler lists upgrade targets.
func ListVersionsHandler(client VaultClient) mcp.ToolHandlerFor[ListVersionsInput, VersionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListVersionsInput) (*mcp.CallToolResult, VersionsResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		defer cancel()
		response, err := client.ListVersions(runCtx, &vaultv1.ListVersionsRequest{})
		if err != nil {
			return nil, VersionsResult{}, fmt.Errorf("list versions failed: %w", err)
		}
		versions := append([]string{}, response.Versions...)
		return nil, VersionsResult{Versions: versions}, nil
	}
}

func transactionsResult(txs []transaction.Transaction, nextPageToken string) (TransactionsResult, error) {
	result := TransactionsResult{
		Transactions:  make([]TransactionEntry, 0, len(txs)),
		NextPageToken: nextPageToken,
	}
	for _, tx := range txs {
		entry, err := transactionEntry(tx)
		if err != nil {
			return TransactionsResult{}, err
		}
		result.Transactions = append(result.Transactions, entry)
	}
	return result, nil
}

func transactionEntry(tx transaction.Transaction) (TransactionEntry, error) {
	payload := map[string]any{}
	if tx.Payload != nil {
		data, err := transaction.EncodePayload(tx.Payload)
		if err != nil {
			return TransactionEntry{}, err
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return TransactionEntry{}, fmt.Errorf("decode transaction %d payload: %w", tx.ID, err)
		}
	}
	entry := TransactionEntry{
		ID:         tx.ID,
		Kind:       string(tx.Kind),
		State:      string(tx.State),
		Initiator:  tx.Initiator,
		Payload:    payload,
		Votes:      make([]VoteEntry, 0, len(tx.Approves)),
		BatchUID:   tx.BatchUID,
		PolicyUID:  tx.PolicyUID,
		Memo:       tx.Memo,
		BlockIndex: tx.BlockIndex,
		CreatedAt:  formatTime(tx.CreatedAt),
		ModifiedAt: formatTime(tx.ModifiedAt),
	}
	if tx.Threshold != nil {
		threshold := int(*tx.Threshold)
		entry.Threshold = &threshold
	}
	if tx.Error != nil {
		entry.ErrorCode = tx.Error.Code
		entry.ErrorMessage = tx.Error.Message
	}
	for _, vote := range tx.Approves {
		entry.Votes = append(entry.Votes, VoteEntry{
			Signer:    vote.Signer,
			Status:    string(vote.Status),
			CreatedAt: formatTime(vote.CreatedAt),
		})
	}
	return entry, nil
}

func stateResult(st state.VaultState) StateResult {
	result := StateResult{
		Name:        st.Name,
		Description: st.Description,
		Quorum:      int(st.Quorum.Value),
		Members:     make([]MemberEntry, 0, len(st.Members)),
		Wallets:     make([]WalletEntry, 0, len(st.Wallets)),
		Policies:    make([]PolicyEntry, 0, len(st.Policies)),
		Controllers: append([]string{}, st.Controllers...),
	}
	for _, m := range st.Members {
		result.Members = append(result.Members, MemberEntry{UserID: m.UserID, Name: m.Name, Role: string(m.Role), State: string(m.State)})
	}
	for _, w := range st.Wallets {
		result.Wallets = append(result.Wallets, WalletEntry{UID: w.UID, Name: w.Name, Currency: w.Currency})
	}
	for _, p := range st.Policies {
		entry := PolicyEntry{
			UID:             p.UID,
			AmountThreshold: p.AmountThreshold,
			Wallets:         append([]string{}, p.Wallets...),
			Currency:        p.Currency,
		}
		if p.MemberThreshold != nil {
			threshold := int(*p.MemberThreshold)
			entry.MemberThreshold = &threshold
		}
		result.Policies = append(result.Policies, entry)
	}
	return result
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
