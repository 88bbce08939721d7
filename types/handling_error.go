package types

import (
	"fmt"

	"github.com/colorfulnotion/ismp/common"
)

// HandlingError describes why one item of a message batch was not applied.
// Kind is the error name and Code its short code, e.g. "DuplicateRequest" and "H19".
// Meta carries the commitment or identifier of the failed item when there is one.
type HandlingError struct {
	Code    string          `json:"code"`
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Meta    common.HexBytes `json:"meta,omitempty"`
}

func (e HandlingError) Error() string {
	return fmt.Sprintf("%s|%s: %s", e.Code, e.Kind, e.Message)
}
