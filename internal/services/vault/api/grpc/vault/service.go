// Package vault exposes the vault engine as the vault.v1.VaultService gRPC API.
package vault

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/platform/grpc/pagination"
	"github.com/louisbranch/sharedvault/internal/platform/requestctx"
	grpcmeta "github.com/louisbranch/sharedvault/internal/services/vault/api/grpc/metadata"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/engine"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultListTransactionsPageSize = 50
	maxListTransactionsPageSize     = 200
)

// Engine is the engine surface the service calls.
type Engine interface {
	RequestTransactions(ctx context.Context, caller string, requests []transaction.Request) ([]transaction.Transaction, error)
	ApproveTransactions(ctx context.Context, caller string, votes []engine.Vote) ([]transaction.Transaction, error)
	Execute(ctx context.Context) error
	Transactions(ctx context.Context) ([]transaction.Transaction, error)
	QueryTransactions(ctx context.Context, query storage.TransactionQuery) (storage.TransactionPage, error)
	State(ctx context.Context, cursor *uint64) (state.VaultState, error)
	AvailableVersions(ctx context.Context) ([]string, error)
}

var _ Engine = (*engine.Engine)(nil)

// Service implements vault.v1.VaultService.
type Service struct {
	engine Engine
}

var _ VaultServiceServer = (*Service)(nil)

// NewService creates a vault service backed by an engine.
func NewService(e Engine) *Service {
	return &Service{engine: e}
}

// RequestTransactions queues transactions on behalf of the authenticated caller.
func (s *Service) RequestTransactions(ctx context.Context, in *RequestTransactionsRequest) (*TransactionsResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request transactions request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	requests := make([]transaction.Request, 0, len(in.Requests))
	for i, req := range in.Requests {
		payload, err := transaction.DecodePayload(req.Kind, req.Payload)
		if err != nil {
			return nil, handle(ctx, apperrors.Wrap(apperrors.CodeInvalidRequest, fmt.Sprintf("request %d: %v", i, err), err))
		}
		requests = append(requests, transaction.Request{Payload: payload, BatchUID: req.BatchUID})
	}
	txs, err := s.engine.RequestTransactions(ctx, requestctx.CallerFromContext(ctx), requests)
	if err != nil {
		return nil, handle(ctx, err)
	}
	return &TransactionsResponse{Transactions: txs}, nil
}

// ApproveTransactions records the authenticated caller's votes.
func (s *Service) ApproveTransactions(ctx context.Context, in *ApproveTransactionsRequest) (*TransactionsResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "approve transactions request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	votes := make([]engine.Vote, len(in.Votes))
	for i, vote := range in.Votes {
		votes[i] = engine.Vote{TxID: vote.TransactionID, Status: vote.Status}
	}
	txs, err := s.engine.ApproveTransactions(ctx, requestctx.CallerFromContext(ctx), votes)
	if err != nil {
		return nil, handle(ctx, err)
	}
	return &TransactionsResponse{Transactions: txs}, nil
}

// Execute runs every Approved transaction and reports what changed.
func (s *Service) Execute(ctx context.Context, in *ExecuteRequest) (*ExecuteResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if requestctx.CallerFromContext(ctx) == "" {
		return nil, handle(ctx, apperrors.New(apperrors.CodeUnauthorised, "caller identity is required"))
	}
	before, err := s.engine.Transactions(ctx)
	if err != nil {
		return nil, handle(ctx, err)
	}
	if err := s.engine.Execute(ctx); err != nil {
		return nil, handle(ctx, err)
	}
	after, err := s.engine.Transactions(ctx)
	if err != nil {
		return nil, handle(ctx, err)
	}
	return &ExecuteResponse{Transactions: changed(before, after)}, nil
}

// ListTransactions returns a filtered page of the log.
func (s *Service) ListTransactions(ctx context.Context, in *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "list transactions request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	pageSize := pagination.ClampPageSize(in.PageSize, pagination.PageSizeConfig{
		Default: defaultListTransactionsPageSize,
		Max:     maxListTransactionsPageSize,
	})
	page, err := s.engine.QueryTransactions(ctx, storage.TransactionQuery{
		Filter:    in.Filter,
		PageSize:  pageSize,
		PageToken: in.PageToken,
	})
	if err != nil {
		return nil, handle(ctx, err)
	}
	return &ListTransactionsResponse{
		Transactions:  page.Transactions,
		NextPageToken: page.NextPageToken,
	}, nil
}

// GetState returns the vault state, optionally as of a transaction id.
func (s *Service) GetState(ctx context.Context, in *GetStateRequest) (*GetStateResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "get state request is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	st, err := s.engine.State(ctx, in.Cursor)
	if err != nil {
		return nil, handle(ctx, err)
	}
	return &GetStateResponse{State: st}, nil
}

// ListVersions returns the module versions upgrades may target.
func (s *Service) ListVersions(ctx context.Context, _ *ListVersionsRequest) (*ListVersionsResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	versions, err := s.engine.AvailableVersions(ctx)
	if err != nil {
		return nil, handle(ctx, err)
	}
	if versions == nil {
		versions = []string{}
	}
	return &ListVersionsResponse{Versions: versions}, nil
}

func (s *Service) ready() error {
	if s == nil || s.engine == nil {
		return status.Error(codes.Internal, "vault engine is not configured")
	}
	return nil
}

func handle(ctx context.Context, err error) error {
	return apperrors.HandleError(err, grpcmeta.LocaleFromContext(ctx))
}

// changed returns transactions created or modified between two reads of the log.
func changed(before, after []transaction.Transaction) []transaction.Transaction {
	out := make([]transaction.Transaction, 0)
	for i, tx := range after {
		if i < len(before) && before[i].State == tx.State && before[i].ModifiedAt.Equal(tx.ModifiedAt) {
			continue
		}
		out = append(out, tx)
	}
	return out
}
