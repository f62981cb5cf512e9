package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBatchPolicy is returned by ParseBatchPolicy for unknown values.
var ErrInvalidBatchPolicy = errors.New("pipeline: batch policy must be abort or skip")

// BatchPolicy decides what AutoExtract does when one slot fails to capture.
type BatchPolicy string

const (
	// BatchAbort stops at the first failure and appends nothing.
	BatchAbort BatchPolicy = "abort"
	// BatchSkip records the failure and keeps capturing the remaining slots.
	BatchSkip BatchPolicy = "skip"
)

// IsValid returns true for a known policy.
func (p BatchPolicy) IsValid() bool {
	return p == BatchAbort || p == BatchSkip
}

// ParseBatchPolicy reads a policy name, case-insensitively.
func ParseBatchPolicy(s string) (BatchPolicy, error) {
	p := BatchPolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: got %q", ErrInvalidBatchPolicy, s)
	}
	return p, nil
}
