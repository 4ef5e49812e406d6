// Package engine runs the vault's transaction lifecycle: requests are queued
// into lanes, collect votes until their threshold is met, and are executed
// in log order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/projection"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName     = "github.com/louisbranch/sharedvault/internal/services/vault/domain/engine"
	loadPageSize   = 200
	defaultPolicy  = "default"
	defaultFounder = "Founder"
)

// Config wires an Engine to its collaborators.
type Config struct {
	Store     storage.TransactionStore
	Ledger    Ledger
	Canisters CanisterManager
	Wasm      WasmRepository

	// Founder becomes the first admin when the log is empty.
	Founder     string
	FounderName string
	CanisterID  string
	// TopUpAccount receives top-up transfers.
	TopUpAccount string

	Clock  func() time.Time
	NewUID func() string
}

// Engine owns the transaction log of one vault.
type Engine struct {
	store        storage.TransactionStore
	ledger       Ledger
	canisters    CanisterManager
	wasm         WasmRepository
	canisterID   string
	topUpAccount string
	clock        func() time.Time
	newUID       func() string
	tracer       trace.Tracer

	// mu guards txs, current and last. execMu admits one executor pass.
	mu     sync.Mutex
	execMu sync.Mutex
	// txs mirrors the stored log; txs[i].ID == i+1.
	txs []transaction.Transaction
	// current memoizes the projection of txs; nil when stale.
	current *state.VaultState
	last    time.Time
}

// New loads the log from the store, writing the genesis transactions when
// the log is empty.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("transaction store is required")
	}
	e := &Engine{
		store:        cfg.Store,
		ledger:       cfg.Ledger,
		canisters:    cfg.Canisters,
		wasm:         cfg.Wasm,
		canisterID:   cfg.CanisterID,
		topUpAccount: cfg.TopUpAccount,
		clock:        cfg.Clock,
		newUID:       cfg.NewUID,
		tracer:       otel.Tracer(tracerName),
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newUID == nil {
		e.newUID = uuid.NewString
	}

	if err := e.load(ctx); err != nil {
		return nil, err
	}
	if len(e.txs) > 0 {
		return e, nil
	}

	founder := strings.TrimSpace(cfg.Founder)
	if founder == "" {
		return nil, fmt.Errorf("founder is required to initialise an empty vault")
	}
	name := strings.TrimSpace(cfg.FounderName)
	if name == "" {
		name = defaultFounder
	}
	if err := e.genesis(ctx, founder, name); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load(ctx context.Context) error {
	afterID := uint64(0)
	for {
		page, err := e.store.ListTransactions(ctx, afterID, loadPageSize)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, tx := range page {
			if tx.ID != uint64(len(e.txs))+1 {
				return fmt.Errorf("load transactions: expected id %d, found %d", len(e.txs)+1, tx.ID)
			}
			e.txs = append(e.txs, tx)
			if tx.ModifiedAt.After(e.last) {
				e.last = tx.ModifiedAt
			}
		}
		afterID = page[len(page)-1].ID
	}
	return nil
}

// genesis registers the founder as admin and installs the default policy.
func (e *Engine) genesis(ctx context.Context, founder, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	at := e.now()
	one := uint8(1)
	payloads := []transaction.Payload{
		transaction.MemberCreate{UserID: founder, Name: name, Role: state.RoleAdmin},
		transaction.PolicyCreate{UID: defaultPolicy},
	}
	st := state.New()
	txs := make([]transaction.Transaction, 0, len(payloads))
	for i, payload := range payloads {
		tx := transaction.New(uint64(i+1), founder, payload, "", at)
		tx.Threshold = &one
		tx.State = transaction.StateExecuted
		if err := projection.Apply(&st, tx); err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := e.store.AppendTransactions(ctx, txs); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	e.txs = txs
	e.current = &st
	return nil
}

// now returns the engine clock in UTC, never earlier than a previous reading.
func (e *Engine) now() time.Time {
	at := e.clock().UTC()
	if at.Before(e.last) {
		at = e.last
	}
	e.last = at
	return at
}

// stateLocked returns the memoized projection of the in-memory log.
func (e *Engine) stateLocked() (state.VaultState, error) {
	if e.current != nil {
		return *e.current, nil
	}
	st, err := projection.Fold(e.txs, nil)
	if err != nil {
		return state.VaultState{}, err
	}
	e.current = &st
	return st, nil
}

func (e *Engine) lookup(id uint64) (*transaction.Transaction, bool) {
	if id == 0 || id > uint64(len(e.txs)) {
		return nil, false
	}
	return &e.txs[id-1], true
}

// Transactions returns a snapshot of the whole log.
func (e *Engine) Transactions(ctx context.Context) ([]transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]transaction.Transaction, len(e.txs))
	for i, tx := range e.txs {
		out[i] = tx.Clone()
	}
	return out, nil
}

// Transaction returns one transaction by id.
func (e *Engine) Transaction(ctx context.Context, id uint64) (transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return transaction.Transaction{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, ok := e.lookup(id)
	if !ok {
		return transaction.Transaction{}, nonexistentKey(id)
	}
	return tx.Clone(), nil
}

// QueryTransactions reads one filtered page straight from the store.
func (e *Engine) QueryTransactions(ctx context.Context, query storage.TransactionQuery) (storage.TransactionPage, error) {
	ctx, span := e.tracer.Start(ctx, "vault.QueryTransactions")
	defer span.End()

	page, err := e.store.QueryTransactions(ctx, query)
	if err != nil {
		err = apperrors.Wrap(apperrors.CodeInvalidRequest, err.Error(), err)
	}
	return page, recordSpan(span, err)
}

// State projects the vault configuration as of cursor, or as of the latest
// transaction when cursor is nil.
func (e *Engine) State(ctx context.Context, cursor *uint64) (state.VaultState, error) {
	ctx, span := e.tracer.Start(ctx, "vault.State")
	defer span.End()

	if cursor != nil {
		st, err := projection.Project(ctx, e.store, cursor)
		return st, recordSpan(span, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked()
	if err != nil {
		return state.VaultState{}, recordSpan(span, err)
	}
	return st.Clone(), nil
}

// AvailableVersions lists the modules the vault may upgrade to.
func (e *Engine) AvailableVersions(ctx context.Context) ([]string, error) {
	if e.wasm == nil {
		return nil, nil
	}
	return e.wasm.AvailableVersions(ctx)
}

func recordSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func nonexistentKey(id uint64) error {
	return apperrors.WithMetadata(apperrors.CodeNonexistentKey,
		fmt.Sprintf("transaction %d does not exist", id),
		map[string]string{"TransactionID": fmt.Sprint(id)})
}

// failureOf converts an error into the form recorded on a transaction.
func failureOf(err error) *transaction.Error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return &transaction.Error{Code: string(appErr.Code), Message: appErr.Message}
	}
	return &transaction.Error{Code: string(apperrors.CodeUnknown), Message: err.Error()}
}
