package transaction

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"golang.org/x/mod/semver"
)

// Payload is the kind-specific body of a transaction. The set of
// implementations is closed to this package.
type Payload interface {
	Kind() Kind
	// Validate checks the payload in isolation, before any vault state is consulted.
	Validate() error
	isPayload()
}

type MemberCreate struct {
	UserID string     `json:"user_id"`
	Name   string     `json:"name"`
	Role   state.Role `json:"role"`
}

type MemberRemove struct {
	UserID string `json:"user_id"`
}

type MemberUpdateName struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type MemberUpdateRole struct {
	UserID string     `json:"user_id"`
	Role   state.Role `json:"role"`
}

type MemberArchive struct {
	UserID string `json:"user_id"`
}

type MemberUnarchive struct {
	UserID string `json:"user_id"`
}

// MemberExtendAccount attaches a ledger account to a member that has none.
type MemberExtendAccount struct {
	UserID  string `json:"user_id"`
	Account string `json:"account"`
}

type QuorumUpdate struct {
	Quorum uint8 `json:"quorum"`
}

// WalletCreate registers a wallet. An empty UID is filled in at request time.
type WalletCreate struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

type WalletUpdateName struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// PolicyCreate registers a policy. An empty UID is filled in at request time.
type PolicyCreate struct {
	UID             string   `json:"uid"`
	MemberThreshold *uint8   `json:"member_threshold,omitempty"`
	AmountThreshold uint64   `json:"amount_threshold"`
	Wallets         []string `json:"wallets,omitempty"`
	Currency        string   `json:"currency"`
}

type PolicyUpdate struct {
	UID             string `json:"uid"`
	MemberThreshold *uint8 `json:"member_threshold,omitempty"`
	AmountThreshold uint64 `json:"amount_threshold"`
}

type PolicyRemove struct {
	UID string `json:"uid"`
}

type VaultNaming struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ControllersUpdate struct {
	Controllers []string `json:"controllers"`
}

// TokenAdd starts tracking a token ledger, and optionally its index.
type TokenAdd struct {
	Ledger string `json:"ledger"`
	Index  string `json:"index,omitempty"`
}

type TokenRemove struct {
	Ledger string `json:"ledger"`
}

// VersionUpgrade moves the vault canister to a newer module version.
type VersionUpgrade struct {
	Version string `json:"version"`
}

// Transfer moves funds out of a wallet under the wallet's resolved policy.
type Transfer struct {
	WalletUID string `json:"wallet_uid"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Currency  string `json:"currency"`
	Memo      string `json:"memo,omitempty"`
}

// TransferQuorum moves funds under the admin quorum instead of a policy.
type TransferQuorum struct {
	WalletUID string `json:"wallet_uid"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Currency  string `json:"currency"`
	Memo      string `json:"memo,omitempty"`
}

// TopUp funds the vault canister from a wallet.
type TopUp struct {
	WalletUID string `json:"wallet_uid"`
	Amount    uint64 `json:"amount"`
	Currency  string `json:"currency"`
}

// TopUpQuorum funds the vault canister under the admin quorum.
type TopUpQuorum struct {
	WalletUID string `json:"wallet_uid"`
	Amount    uint64 `json:"amount"`
	Currency  string `json:"currency"`
}

// Purge clears every queued transaction older than itself.
type Purge struct{}

func (MemberCreate) Kind() Kind        { return KindMemberCreate }
func (MemberRemove) Kind() Kind        { return KindMemberRemove }
func (MemberUpdateName) Kind() Kind    { return KindMemberUpdateName }
func (MemberUpdateRole) Kind() Kind    { return KindMemberUpdateRole }
func (MemberArchive) Kind() Kind       { return KindMemberArchive }
func (MemberUnarchive) Kind() Kind     { return KindMemberUnarchive }
func (MemberExtendAccount) Kind() Kind { return KindMemberAccount }
func (QuorumUpdate) Kind() Kind        { return KindQuorumUpdate }
func (WalletCreate) Kind() Kind        { return KindWalletCreate }
func (WalletUpdateName) Kind() Kind    { return KindWalletUpdateName }
func (PolicyCreate) Kind() Kind        { return KindPolicyCreate }
func (PolicyUpdate) Kind() Kind        { return KindPolicyUpdate }
func (PolicyRemove) Kind() Kind        { return KindPolicyRemove }
func (VaultNaming) Kind() Kind         { return KindVaultNaming }
func (ControllersUpdate) Kind() Kind   { return KindControllersUpdate }
func (TokenAdd) Kind() Kind            { return KindTokenAdd }
func (TokenRemove) Kind() Kind         { return KindTokenRemove }
func (VersionUpgrade) Kind() Kind      { return KindVersionUpgrade }
func (Transfer) Kind() Kind            { return KindTransfer }
func (TransferQuorum) Kind() Kind      { return KindTransferQuorum }
func (TopUp) Kind() Kind               { return KindTopUp }
func (TopUpQuorum) Kind() Kind         { return KindTopUpQuorum }
func (Purge) Kind() Kind               { return KindPurge }

func (MemberCreate) isPayload()        {}
func (MemberRemove) isPayload()        {}
func (MemberUpdateName) isPayload()    {}
func (MemberUpdateRole) isPayload()    {}
func (MemberArchive) isPayload()       {}
func (MemberUnarchive) isPayload()     {}
func (MemberExtendAccount) isPayload() {}
func (QuorumUpdate) isPayload()        {}
func (WalletCreate) isPayload()        {}
func (WalletUpdateName) isPayload()    {}
func (PolicyCreate) isPayload()        {}
func (PolicyUpdate) isPayload()        {}
func (PolicyRemove) isPayload()        {}
func (VaultNaming) isPayload()         {}
func (ControllersUpdate) isPayload()   {}
func (TokenAdd) isPayload()            {}
func (TokenRemove) isPayload()         {}
func (VersionUpgrade) isPayload()      {}
func (Transfer) isPayload()            {}
func (TransferQuorum) isPayload()      {}
func (TopUp) isPayload()               {}
func (TopUpQuorum) isPayload()         {}
func (Purge) isPayload()               {}

func invalid(format string, args ...any) error {
	return apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf(format, args...))
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("%s is required", field)
	}
	return nil
}

func validRole(role state.Role) error {
	if !role.Valid() {
		return invalid("role %q is invalid", role)
	}
	return nil
}

func validMemberThreshold(value *uint8) error {
	if value != nil && *value == 0 {
		return invalid("member threshold must be greater than zero")
	}
	return nil
}

func (p MemberCreate) Validate() error {
	if err := required("user id", p.UserID); err != nil {
		return err
	}
	return validRole(p.Role)
}

func (p MemberRemove) Validate() error { return required("user id", p.UserID) }

func (p MemberUpdateName) Validate() error {
	if err := required("user id", p.UserID); err != nil {
		return err
	}
	return required("name", p.Name)
}

func (p MemberUpdateRole) Validate() error {
	if err := required("user id", p.UserID); err != nil {
		return err
	}
	return validRole(p.Role)
}

func (p MemberArchive) Validate() error   { return required("user id", p.UserID) }
func (p MemberUnarchive) Validate() error { return required("user id", p.UserID) }

func (p MemberExtendAccount) Validate() error {
	if err := required("user id", p.UserID); err != nil {
		return err
	}
	return required("account", p.Account)
}

func (p QuorumUpdate) Validate() error {
	if p.Quorum == 0 {
		return invalid("quorum must be greater than zero")
	}
	return nil
}

func (p WalletCreate) Validate() error { return required("wallet name", p.Name) }

func (p WalletUpdateName) Validate() error {
	if err := required("wallet uid", p.UID); err != nil {
		return err
	}
	return required("wallet name", p.Name)
}

func (p PolicyCreate) Validate() error {
	for _, wallet := range p.Wallets {
		if err := required("policy wallet", wallet); err != nil {
			return err
		}
	}
	return validMemberThreshold(p.MemberThreshold)
}

func (p PolicyUpdate) Validate() error {
	if err := required("policy uid", p.UID); err != nil {
		return err
	}
	return validMemberThreshold(p.MemberThreshold)
}

func (p PolicyRemove) Validate() error { return required("policy uid", p.UID) }

func (p VaultNaming) Validate() error { return required("vault name", p.Name) }

func (p ControllersUpdate) Validate() error {
	if len(p.Controllers) == 0 {
		return invalid("at least one controller is required")
	}
	for _, controller := range p.Controllers {
		if err := required("controller", controller); err != nil {
			return err
		}
	}
	return nil
}

func (p TokenAdd) Validate() error    { return required("token ledger", p.Ledger) }
func (p TokenRemove) Validate() error { return required("token ledger", p.Ledger) }

func (p VersionUpgrade) Validate() error {
	if !semver.IsValid(p.Version) {
		return invalid("version %q is not a semantic version", p.Version)
	}
	return nil
}

func validateMovement(wallet, to string, amount uint64, needsTo bool) error {
	if err := required("wallet uid", wallet); err != nil {
		return err
	}
	if needsTo {
		if err := required("destination", to); err != nil {
			return err
		}
	}
	if amount == 0 {
		return invalid("amount must be greater than zero")
	}
	return nil
}

func (p Transfer) Validate() error {
	return validateMovement(p.WalletUID, p.To, p.Amount, true)
}

func (p TransferQuorum) Validate() error {
	return validateMovement(p.WalletUID, p.To, p.Amount, true)
}

func (p TopUp) Validate() error {
	return validateMovement(p.WalletUID, "", p.Amount, false)
}

func (p TopUpQuorum) Validate() error {
	return validateMovement(p.WalletUID, "", p.Amount, false)
}

func (Purge) Validate() error { return nil }

// Movement is the wallet debit a fund-moving payload describes.
type Movement struct {
	WalletUID string
	To        string
	Amount    uint64
	Currency  string
	Memo      string
}

// MovementOf extracts the wallet debit of a fund-moving payload.
func MovementOf(p Payload) (Movement, bool) {
	switch v := p.(type) {
	case Transfer:
		return Movement{WalletUID: v.WalletUID, To: v.To, Amount: v.Amount, Currency: v.Currency, Memo: v.Memo}, true
	case TransferQuorum:
		return Movement{WalletUID: v.WalletUID, To: v.To, Amount: v.Amount, Currency: v.Currency, Memo: v.Memo}, true
	case TopUp:
		return Movement{WalletUID: v.WalletUID, Amount: v.Amount, Currency: v.Currency}, true
	case TopUpQuorum:
		return Movement{WalletUID: v.WalletUID, Amount: v.Amount, Currency: v.Currency}, true
	default:
		return Movement{}, false
	}
}

// EncodePayload renders a payload as JSON.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("payload is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return data, nil
}

// DecodePayload parses the JSON body of a transaction of the given kind.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	switch kind {
	case KindMemberCreate:
		return decode[MemberCreate](kind, data)
	case KindMemberRemove:
		return decode[MemberRemove](kind, data)
	case KindMemberUpdateName:
		return decode[MemberUpdateName](kind, data)
	case KindMemberUpdateRole:
		return decode[MemberUpdateRole](kind, data)
	case KindMemberArchive:
		return decode[MemberArchive](kind, data)
	case KindMemberUnarchive:
		return decode[MemberUnarchive](kind, data)
	case KindMemberAccount:
		return decode[MemberExtendAccount](kind, data)
	case KindQuorumUpdate:
		return decode[QuorumUpdate](kind, data)
	case KindWalletCreate:
		return decode[WalletCreate](kind, data)
	case KindWalletUpdateName:
		return decode[WalletUpdateName](kind, data)
	case KindPolicyCreate:
		return decode[PolicyCreate](kind, data)
	case KindPolicyUpdate:
		return decode[PolicyUpdate](kind, data)
	case KindPolicyRemove:
		return decode[PolicyRemove](kind, data)
	case KindVaultNaming:
		return decode[VaultNaming](kind, data)
	case KindControllersUpdate:
		return decode[ControllersUpdate](kind, data)
	case KindTokenAdd:
		return decode[TokenAdd](kind, data)
	case KindTokenRemove:
		return decode[TokenRemove](kind, data)
	case KindVersionUpgrade:
		return decode[VersionUpgrade](kind, data)
	case KindTransfer:
		return decode[Transfer](kind, data)
	case KindTransferQuorum:
		return decode[TransferQuorum](kind, data)
	case KindTopUp:
		return decode[TopUp](kind, data)
	case KindTopUpQuorum:
		return decode[TopUpQuorum](kind, data)
	case KindPurge:
		return Purge{}, nil
	default:
		return nil, invalid("transaction kind %q is unknown", kind)
	}
}

func decode[T Payload](kind Kind, data []byte) (Payload, error) {
	var value T
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, invalid("decode %s payload: %v", kind, err)
		}
	}
	return value, nil
}
