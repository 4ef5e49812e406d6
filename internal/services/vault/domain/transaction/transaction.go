// Package transaction models vault transactions: the closed set of kinds,
// their payloads, lifecycle states, and votes.
package transaction

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// State is a transaction's position in its lifecycle.
type State string

const (
	StateBlocked  State = "BLOCKED"
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StateCanceled State = "CANCELED"
	StateExecuted State = "EXECUTED"
	StateFailed   State = "FAILED"
	StatePurged   State = "PURGED"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateCanceled, StateExecuted, StateFailed, StatePurged:
		return true
	default:
		return false
	}
}

// Unfinished reports whether the transaction still occupies its queue.
func (s State) Unfinished() bool {
	return s == StateBlocked || s == StatePending || s == StateApproved
}

// Vote is a signer's decision on a transaction.
type Vote string

const (
	VoteApproved Vote = "APPROVED"
	VoteRejected Vote = "REJECTED"
	// VoteCanceled withdraws the transaction; only its initiator may cast it.
	VoteCanceled Vote = "CANCELED"
)

// Valid reports whether the vote is known.
func (v Vote) Valid() bool {
	return v == VoteApproved || v == VoteRejected || v == VoteCanceled
}

// Approve is one recorded vote.
type Approve struct {
	Signer    string    `json:"signer"`
	Status    Vote      `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Error is the structured failure recorded on a Rejected or Failed transaction.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Transaction is one entry of the vault's log.
type Transaction struct {
	ID           uint64
	Kind         Kind
	Payload      Payload
	Initiator    string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	State        State
	Approves     []Approve
	Threshold    *uint8
	BatchUID     string
	IsVaultState bool
	// PolicyUID names the policy that set Threshold, if any.
	PolicyUID  string
	Memo       string
	Error      *Error
	BlockIndex *uint64
}

// New builds a transaction in the Blocked state with the initiator's approval.
func New(id uint64, initiator string, payload Payload, batchUID string, at time.Time) Transaction {
	return Transaction{
		ID:           id,
		Kind:         payload.Kind(),
		Payload:      payload,
		Initiator:    initiator,
		CreatedAt:    at,
		ModifiedAt:   at,
		State:        StateBlocked,
		Approves:     []Approve{{Signer: initiator, Status: VoteApproved, CreatedAt: at}},
		BatchUID:     batchUID,
		IsVaultState: payload.Kind().IsVaultState(),
	}
}

// VoteOf returns the signer's recorded vote.
func (t Transaction) VoteOf(signer string) (Approve, bool) {
	idx := slices.IndexFunc(t.Approves, func(a Approve) bool { return a.Signer == signer })
	if idx < 0 {
		return Approve{}, false
	}
	return t.Approves[idx], true
}

// SetVote records a signer's vote, replacing an earlier entry by the same signer.
func (t *Transaction) SetVote(signer string, vote Vote, at time.Time) {
	entry := Approve{Signer: signer, Status: vote, CreatedAt: at}
	if idx := slices.IndexFunc(t.Approves, func(a Approve) bool { return a.Signer == signer }); idx >= 0 {
		t.Approves[idx] = entry
	} else {
		t.Approves = append(t.Approves, entry)
	}
	t.ModifiedAt = at
}

// Finish moves the transaction to a terminal state.
func (t *Transaction) Finish(next State, failure *Error, memo string, at time.Time) {
	t.State = next
	t.ModifiedAt = at
	if failure != nil {
		copied := *failure
		t.Error = &copied
	}
	if memo != "" {
		t.Memo = memo
	}
}

// Clone returns a deep copy.
func (t Transaction) Clone() Transaction {
	out := t
	out.Approves = slices.Clone(t.Approves)
	if t.Threshold != nil {
		value := *t.Threshold
		out.Threshold = &value
	}
	if t.Error != nil {
		value := *t.Error
		out.Error = &value
	}
	if t.BlockIndex != nil {
		value := *t.BlockIndex
		out.BlockIndex = &value
	}
	out.Payload = clonePayload(t.Payload)
	return out
}

func clonePayload(p Payload) Payload {
	switch v := p.(type) {
	case PolicyCreate:
		v.Wallets = slices.Clone(v.Wallets)
		if v.MemberThreshold != nil {
			value := *v.MemberThreshold
			v.MemberThreshold = &value
		}
		return v
	case PolicyUpdate:
		if v.MemberThreshold != nil {
			value := *v.MemberThreshold
			v.MemberThreshold = &value
		}
		return v
	case ControllersUpdate:
		v.Controllers = slices.Clone(v.Controllers)
		return v
	default:
		return p
	}
}

type transactionJSON struct {
	ID           uint64          `json:"id"`
	Kind         Kind            `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Initiator    string          `json:"initiator"`
	CreatedAt    time.Time       `json:"created_at"`
	ModifiedAt   time.Time       `json:"modified_at"`
	State        State           `json:"state"`
	Approves     []Approve       `json:"approves"`
	Threshold    *uint8          `json:"threshold,omitempty"`
	BatchUID     string          `json:"batch_uid,omitempty"`
	IsVaultState bool            `json:"is_vault_state"`
	PolicyUID    string          `json:"policy_uid,omitempty"`
	Memo         string          `json:"memo,omitempty"`
	Error        *Error          `json:"error,omitempty"`
	BlockIndex   *uint64         `json:"block_index,omitempty"`
}

// MarshalJSON renders the transaction with its payload inline.
func (t Transaction) MarshalJSON() ([]byte, error) {
	payload, err := EncodePayload(t.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(transactionJSON{
		ID:           t.ID,
		Kind:         t.Kind,
		Payload:      payload,
		Initiator:    t.Initiator,
		CreatedAt:    t.CreatedAt,
		ModifiedAt:   t.ModifiedAt,
		State:        t.State,
		Approves:     t.Approves,
		Threshold:    t.Threshold,
		BatchUID:     t.BatchUID,
		IsVaultState: t.IsVaultState,
		PolicyUID:    t.PolicyUID,
		Memo:         t.Memo,
		Error:        t.Error,
		BlockIndex:   t.BlockIndex,
	})
}

// UnmarshalJSON parses the form produced by MarshalJSON.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := DecodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return fmt.Errorf("transaction %d: %w", raw.ID, err)
	}
	*t = Transaction{
		ID:           raw.ID,
		Kind:         raw.Kind,
		Payload:      payload,
		Initiator:    raw.Initiator,
		CreatedAt:    raw.CreatedAt,
		ModifiedAt:   raw.ModifiedAt,
		State:        raw.State,
		Approves:     raw.Approves,
		Threshold:    raw.Threshold,
		BatchUID:     raw.BatchUID,
		IsVaultState: raw.IsVaultState,
		PolicyUID:    raw.PolicyUID,
		Memo:         raw.Memo,
		Error:        raw.Error,
		BlockIndex:   raw.BlockIndex,
	}
	return nil
}

// Request asks the engine to create one transaction.
type Request struct {
	Payload  Payload
	BatchUID string
}
