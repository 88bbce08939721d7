package ismperrors

import (
	"errors"
	"strings"
)

// Handling (H) Errors
var (
	ErrHChallengePeriodNotElapsed                  = errors.New("H1|ChallengePeriodNotElapsed: The challenge period of the referenced state commitment has not elapsed.")
	ErrHConsensusStateNotFound                     = errors.New("H2|ConsensusStateNotFound: No consensus state is stored under the given id.")
	ErrHStateCommitmentNotFound                    = errors.New("H3|StateCommitmentNotFound: No state commitment is stored for the given state machine height.")
	ErrHFrozenConsensusClient                      = errors.New("H4|FrozenConsensusClient: The consensus client is frozen.")
	ErrHFrozenStateMachine                         = errors.New("H5|FrozenStateMachine: The state machine is frozen.")
	ErrHRequestCommitmentNotFound                  = errors.New("H6|RequestCommitmentNotFound: The request commitment does not exist on this host.")
	ErrHRequestVerificationFailed                  = errors.New("H7|RequestVerificationFailed: The request membership proof did not verify.")
	ErrHResponseVerificationFailed                 = errors.New("H8|ResponseVerificationFailed: The response membership proof did not verify.")
	ErrHConsensusProofVerificationFailed           = errors.New("H9|ConsensusProofVerificationFailed: The consensus proof did not verify against the trusted state.")
	ErrHExpiredConsensusClient                     = errors.New("H10|ExpiredConsensusClient: The unbonding period elapsed since the last consensus update.")
	ErrHRequestTimeoutNotElapsed                   = errors.New("H11|RequestTimeoutNotElapsed: The destination has not reached the timeout timestamp.")
	ErrHRequestTimeoutVerificationFailed           = errors.New("H12|RequestTimeoutVerificationFailed: The timeout could not be verified.")
	ErrHMembershipProofVerificationFailed          = errors.New("H13|MembershipProofVerificationFailed: The membership proof did not verify.")
	ErrHNonMembershipProofVerificationFailed       = errors.New("H14|NonMembershipProofVerificationFailed: The non-membership proof did not verify.")
	ErrHCannotCreateAlreadyExistingConsensusClient = errors.New("H15|CannotCreateAlreadyExistingConsensusClient: A consensus state already exists under the given id.")
	ErrHModuleNotFound                             = errors.New("H16|ModuleNotFound: No module is registered for the destination.")
	ErrHImplementationSpecific                     = errors.New("H17|ImplementationSpecific: Implementation specific failure.")
	ErrHConsensusClientNotFound                    = errors.New("H18|ConsensusClientNotFound: No consensus client is registered under the given id.")
	ErrHDuplicateRequest                           = errors.New("H19|DuplicateRequest: A receipt for the request already exists.")
	ErrHDuplicateResponse                          = errors.New("H20|DuplicateResponse: The request has already been responded to.")
	ErrHRequestTimeout                             = errors.New("H21|RequestTimeout: The request timed out before delivery.")
	ErrHInvalidDestination                         = errors.New("H22|InvalidDestination: The message is not addressed to this host.")
	ErrHInvalidSource                              = errors.New("H23|InvalidSource: The message source does not match the proof state machine.")
	ErrHFraudProofVerificationFailed               = errors.New("H24|FraudProofVerificationFailed: The fraud proof does not show conflicting finalized headers.")
	ErrHUnauthorized                               = errors.New("H25|Unauthorized: The origin is not whitelisted for this call.")
	ErrHUnbondingPeriodTooShort                    = errors.New("H26|UnbondingPeriodTooShort: The unbonding period must exceed the challenge period.")
)

// Dispatch (D) Errors
var (
	ErrDRequestReceiptNotFound    = errors.New("D1|RequestReceiptNotFound: A response can only be dispatched for a received request.")
	ErrDResponseAlreadyDispatched = errors.New("D2|ResponseAlreadyDispatched: A response for the request was already dispatched.")
	ErrDInvalidRequest            = errors.New("D3|InvalidRequest: The request is malformed.")
)

// Relayer fee (F) Errors
var (
	ErrFMissingCommitments     = errors.New("F1|MissingCommitments: No claimable commitment was proven.")
	ErrFInvalidSignature       = errors.New("F2|InvalidSignature: The withdrawal signature does not verify.")
	ErrFInsufficientBalance    = errors.New("F3|InsufficientBalance: The relayer balance is lower than the requested amount.")
	ErrFInvalidAmount          = errors.New("F4|InvalidAmount: The withdrawal amount must be positive.")
	ErrFMismatchedStateMachine = errors.New("F5|MismatchedStateMachine: The commitment does not belong to the proven state machines.")
)

// Envelope (E) Errors
var (
	ErrEMalformedMessage = errors.New("E1|MalformedMessage: The message envelope could not be decoded.")
)

var handlingErrors = []error{
	ErrHChallengePeriodNotElapsed,
	ErrHConsensusStateNotFound,
	ErrHStateCommitmentNotFound,
	ErrHFrozenConsensusClient,
	ErrHFrozenStateMachine,
	ErrHRequestCommitmentNotFound,
	ErrHRequestVerificationFailed,
	ErrHResponseVerificationFailed,
	ErrHConsensusProofVerificationFailed,
	ErrHExpiredConsensusClient,
	ErrHRequestTimeoutNotElapsed,
	ErrHRequestTimeoutVerificationFailed,
	ErrHMembershipProofVerificationFailed,
	ErrHNonMembershipProofVerificationFailed,
	ErrHCannotCreateAlreadyExistingConsensusClient,
	ErrHModuleNotFound,
	ErrHImplementationSpecific,
	ErrHConsensusClientNotFound,
	ErrHDuplicateRequest,
	ErrHDuplicateResponse,
	ErrHRequestTimeout,
	ErrHInvalidDestination,
	ErrHInvalidSource,
	ErrHFraudProofVerificationFailed,
	ErrHUnauthorized,
	ErrHUnbondingPeriodTooShort,
	ErrDRequestReceiptNotFound,
	ErrDResponseAlreadyDispatched,
	ErrDInvalidRequest,
	ErrFMissingCommitments,
	ErrFInvalidSignature,
	ErrFInsufficientBalance,
	ErrFInvalidAmount,
	ErrFMismatchedStateMachine,
	ErrEMalformedMessage,
}

// Kind returns the sentinel error wrapped by err, or nil when err wraps none of them.
func Kind(err error) error {
	for _, sentinel := range handlingErrors {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	if kind := Kind(err); kind != nil {
		err = kind
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

func GetErrorNames(errs []error) []string {
	errStrs := make([]string, len(errs))
	for i, err := range errs {
		errStrs[i] = GetErrorName(err)
	}
	return errStrs
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if kind := Kind(err); kind != nil {
		err = kind
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}
