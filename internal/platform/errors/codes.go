// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Caller errors
	CodeNotRegistered Code = "NOT_REGISTERED"
	CodeNotPermitted  Code = "NOT_PERMITTED"
	CodeUnauthorised  Code = "UNAUTHORISED"

	// Approval errors
	CodeAlreadyApproved        Code = "ALREADY_APPROVED"
	CodeTransactionImmutable   Code = "TRANSACTION_IMMUTABLE"
	CodeNonexistentKey         Code = "NONEXISTENT_KEY"
	CodeCouldNotDefinePolicy   Code = "NO_SUITABLE_POLICY"
	CodeInvalidRequest         Code = "INVALID_REQUEST"
	CodeExternalCallRejected   Code = "EXTERNAL_CALL_REJECTED"
	CodeQuorumNotReachable     Code = "QUORUM_NOT_REACHABLE"
	CodeLessThanOneAdmin       Code = "LESS_THAN_ONE_ADMIN"
	CodeThresholdAlreadyExists Code = "THRESHOLD_ALREADY_EXISTS"

	// Vault configuration errors
	CodeWalletNotExists     Code = "WALLET_NOT_EXISTS"
	CodeUIDAlreadyExists    Code = "UID_ALREADY_EXISTS"
	CodeMemberAlreadyExists Code = "MEMBER_ALREADY_EXISTS"
	CodeMemberNotExists     Code = "MEMBER_NOT_EXISTS"
	CodePolicyNotExists     Code = "POLICY_NOT_EXISTS"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidRequest,
		CodeCouldNotDefinePolicy,
		CodeQuorumNotReachable,
		CodeLessThanOneAdmin,
		CodeThresholdAlreadyExists:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeTransactionImmutable,
		CodeExternalCallRejected:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNonexistentKey,
		CodeWalletNotExists,
		CodeMemberNotExists,
		CodePolicyNotExists:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeAlreadyApproved,
		CodeUIDAlreadyExists,
		CodeMemberAlreadyExists:
		return codes.AlreadyExists

	// PermissionDenied - caller is known but may not act
	case CodeNotRegistered,
		CodeNotPermitted:
		return codes.PermissionDenied

	case CodeUnauthorised:
		return codes.Unauthenticated

	default:
		return codes.Internal
	}
}
