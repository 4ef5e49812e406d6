package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

// RequestTransactions validates and queues requests on behalf of caller.
// Either every request becomes a transaction or none does.
func (e *Engine) RequestTransactions(ctx context.Context, caller string, requests []transaction.Request) (_ []transaction.Transaction, err error) {
	ctx, span := e.tracer.Start(ctx, "vault.RequestTransactions")
	defer span.End()
	defer func() { err = recordSpan(span, err) }()

	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, unauthorised()
	}
	if len(requests) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "at least one request is required")
	}
	if err := e.checkUpgradeVersions(ctx, requests); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.stateLocked()
	if err != nil {
		return nil, err
	}
	member, err := activeMember(st, caller)
	if err != nil {
		return nil, err
	}
	payloads, err := e.validateRequests(st, member, requests)
	if err != nil {
		return nil, err
	}

	c := e.begin()
	at := e.now()
	firstID := uint64(len(e.txs)) + 1
	for i, payload := range payloads {
		c.append(transaction.New(firstID+uint64(i), caller, payload, requests[i].BatchUID, at))
	}
	if err := c.advance(firstID); err != nil {
		c.rollback()
		return nil, err
	}
	if err := c.commit(ctx); err != nil {
		return nil, err
	}

	out := make([]transaction.Transaction, len(payloads))
	for i := range payloads {
		out[i] = e.txs[firstID-1+uint64(i)].Clone()
	}
	return out, nil
}

func (e *Engine) checkUpgradeVersions(ctx context.Context, requests []transaction.Request) error {
	var available []string
	loaded := false
	for _, req := range requests {
		upgrade, ok := req.Payload.(transaction.VersionUpgrade)
		if !ok {
			continue
		}
		if e.wasm == nil {
			return apperrors.New(apperrors.CodeInvalidRequest, "version upgrades are not configured")
		}
		if !loaded {
			versions, err := e.wasm.AvailableVersions(ctx)
			if err != nil {
				return fmt.Errorf("list available versions: %w", err)
			}
			available, loaded = versions, true
		}
		if !slices.Contains(available, upgrade.Version) {
			return apperrors.New(apperrors.CodeInvalidRequest,
				fmt.Sprintf("version %s is not available", upgrade.Version))
		}
	}
	return nil
}

// validateRequests checks every request against the current state and the
// queued transactions, filling generated uids.
func (e *Engine) validateRequests(st state.VaultState, member state.Member, requests []transaction.Request) ([]transaction.Payload, error) {
	usedBatches := make(map[string]struct{})
	pendingUIDs := make(map[string]struct{})
	for _, tx := range e.txs {
		if tx.BatchUID != "" {
			usedBatches[tx.BatchUID] = struct{}{}
		}
		if key, _ := claimedUID(tx.Payload); key != "" && tx.State.Unfinished() {
			pendingUIDs[key] = struct{}{}
		}
	}
	pendingWallets := make(map[string]struct{})
	for _, tx := range e.txs {
		if create, ok := tx.Payload.(transaction.WalletCreate); ok && tx.State.Unfinished() {
			pendingWallets[create.UID] = struct{}{}
		}
	}

	payloads := make([]transaction.Payload, 0, len(requests))
	for _, req := range requests {
		if req.Payload == nil {
			return nil, apperrors.New(apperrors.CodeInvalidRequest, "request payload is required")
		}
		if err := req.Payload.Validate(); err != nil {
			return nil, err
		}
		kind := req.Payload.Kind()
		if kind.AdminOnly() && member.Role != state.RoleAdmin {
			return nil, notPermitted(member.UserID, kind)
		}
		if req.BatchUID != "" {
			if !kind.Batchable() {
				return nil, apperrors.New(apperrors.CodeInvalidRequest,
					fmt.Sprintf("%s cannot join a batch", kind))
			}
			if _, ok := usedBatches[req.BatchUID]; ok {
				return nil, uidAlreadyExists(req.BatchUID)
			}
		}

		payload := e.fillUIDs(req.Payload)
		if key, uid := claimedUID(payload); key != "" {
			if _, ok := pendingUIDs[key]; ok || uidTaken(st, payload) {
				return nil, uidAlreadyExists(uid)
			}
			pendingUIDs[key] = struct{}{}
		}
		if create, ok := payload.(transaction.WalletCreate); ok {
			pendingWallets[create.UID] = struct{}{}
		}
		if movement, ok := transaction.MovementOf(payload); ok {
			_, queued := pendingWallets[movement.WalletUID]
			if _, exists := st.Wallet(movement.WalletUID); !exists && !queued {
				return nil, apperrors.WithMetadata(apperrors.CodeWalletNotExists,
					fmt.Sprintf("wallet %s does not exist", movement.WalletUID),
					map[string]string{"WalletUID": movement.WalletUID})
			}
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

func (e *Engine) fillUIDs(payload transaction.Payload) transaction.Payload {
	switch p := payload.(type) {
	case transaction.WalletCreate:
		if p.UID == "" {
			p.UID = e.newUID()
		}
		return p
	case transaction.PolicyCreate:
		if p.UID == "" {
			p.UID = e.newUID()
		}
		return p
	default:
		return payload
	}
}

// claimedUID returns the uid a creation payload claims, and a key unique
// across wallets and policies.
func claimedUID(payload transaction.Payload) (string, string) {
	switch p := payload.(type) {
	case transaction.WalletCreate:
		return "wallet/" + p.UID, p.UID
	case transaction.PolicyCreate:
		return "policy/" + p.UID, p.UID
	default:
		return "", ""
	}
}

func uidTaken(st state.VaultState, payload transaction.Payload) bool {
	switch p := payload.(type) {
	case transaction.WalletCreate:
		_, ok := st.Wallet(p.UID)
		return ok
	case transaction.PolicyCreate:
		_, ok := st.Policy(p.UID)
		return ok
	default:
		return false
	}
}

func activeMember(st state.VaultState, userID string) (state.Member, error) {
	member, ok := st.Member(userID)
	if !ok || !member.Active() {
		return state.Member{}, apperrors.WithMetadata(apperrors.CodeNotRegistered,
			fmt.Sprintf("user %s is not an active member", userID),
			map[string]string{"UserID": userID})
	}
	return member, nil
}

func unauthorised() error {
	return apperrors.New(apperrors.CodeUnauthorised, "caller identity is required")
}

func notPermitted(userID string, kind transaction.Kind) error {
	return apperrors.WithMetadata(apperrors.CodeNotPermitted,
		fmt.Sprintf("user %s may not act on %s", userID, kind),
		map[string]string{"UserID": userID, "Kind": string(kind)})
}

func uidAlreadyExists(uid string) error {
	return apperrors.WithMetadata(apperrors.CodeUIDAlreadyExists,
		fmt.Sprintf("uid %s already exists", uid),
		map[string]string{"UID": uid})
}
