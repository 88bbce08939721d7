package ismperrors

import (
	"github.com/colorfulnotion/ismp/types"
)

// ToHandlingError converts a per-message failure into the value reported by the Errors event.
// Errors that wrap none of the sentinels are reported as ImplementationSpecific.
func ToHandlingError(err error) types.HandlingError {
	kind := Kind(err)
	if kind == nil {
		kind = ErrHImplementationSpecific
	}
	return types.HandlingError{
		Code:    GetErrorCode(kind),
		Kind:    GetErrorName(kind),
		Message: err.Error(),
	}
}

// ToHandlingErrors converts a batch of failures, preserving order.
func ToHandlingErrors(errs []error) []types.HandlingError {
	out := make([]types.HandlingError, 0, len(errs))
	for _, err := range errs {
		out = append(out, ToHandlingError(err))
	}
	return out
}
