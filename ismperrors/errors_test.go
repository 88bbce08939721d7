package ismperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetErrorNameAndCode(t *testing.T) {
	assert.Equal(t, "ChallengePeriodNotElapsed", GetErrorName(ErrHChallengePeriodNotElapsed))
	assert.Equal(t, "H1", GetErrorCode(ErrHChallengePeriodNotElapsed))
	assert.Equal(t, "F3", GetErrorCode(ErrFInsufficientBalance))
	assert.Equal(t, "No Error", GetErrorName(nil))
	assert.Equal(t, "", GetErrorCode(nil))

	wrapped := fmt.Errorf("request 0xabcd: %w", ErrHDuplicateRequest)
	assert.Equal(t, "DuplicateRequest", GetErrorName(wrapped))
	assert.Equal(t, "H19", GetErrorCode(wrapped))
	assert.Equal(t, []string{"DuplicateRequest", "InvalidSource"}, GetErrorNames([]error{wrapped, ErrHInvalidSource}))
}

func TestSentinelsAreUnique(t *testing.T) {
	codes := make(map[string]bool)
	names := make(map[string]bool)
	for _, err := range handlingErrors {
		code, name := GetErrorCode(err), GetErrorName(err)
		require.False(t, codes[code], "duplicate code %s", code)
		require.False(t, names[name], "duplicate name %s", name)
		codes[code], names[name] = true, true
	}
}

func TestToHandlingError(t *testing.T) {
	he := ToHandlingError(fmt.Errorf("height 7: %w", ErrHStateCommitmentNotFound))
	assert.Equal(t, "H3", he.Code)
	assert.Equal(t, "StateCommitmentNotFound", he.Kind)
	assert.Contains(t, he.Message, "height 7")

	he = ToHandlingError(errors.New("module rejected body"))
	assert.Equal(t, "ImplementationSpecific", he.Kind)
	assert.Equal(t, "H17", he.Code)
	assert.Equal(t, "module rejected body", he.Message)

	all := ToHandlingErrors([]error{ErrHModuleNotFound, ErrFInvalidAmount})
	require.Len(t, all, 2)
	assert.Equal(t, "ModuleNotFound", all[0].Kind)
	assert.Equal(t, "InvalidAmount", all[1].Kind)
}
