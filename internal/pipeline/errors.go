package pipeline

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by a Session matches exactly one of these
// through errors.Is, except ErrSuperseded, ErrFrameNotFound and ErrSessionClosed.
var (
	// ErrValidation marks malformed or out-of-range user input. No state was mutated.
	ErrValidation = errors.New("validation error")
	// ErrPrecondition marks an action invoked while its precondition is unmet.
	ErrPrecondition = errors.New("precondition failed")
	// ErrFrameCapture marks a failed seek-and-capture.
	ErrFrameCapture = errors.New("frame capture failed")
	// ErrGeneration marks a failed call to the generation provider.
	ErrGeneration = errors.New("generation failed")
)

var (
	ErrNoVideo              = fmt.Errorf("%w: no video loaded", ErrPrecondition)
	ErrExtractionInProgress = fmt.Errorf("%w: frame extraction already in progress", ErrPrecondition)
	ErrGenerationInProgress = fmt.Errorf("%w: generation already in progress", ErrPrecondition)
	ErrNothingSelected      = fmt.Errorf("%w: no frames selected", ErrPrecondition)
	ErrNoResult             = fmt.Errorf("%w: no generated thumbnail to refine", ErrPrecondition)
	ErrEmptyInstruction     = fmt.Errorf("%w: edit instruction is empty", ErrPrecondition)

	ErrInvalidTimecode = fmt.Errorf("%w: time must be MM:SS or SS", ErrValidation)
	ErrTimeOutOfRange  = fmt.Errorf("%w: time is outside the video", ErrValidation)
	ErrUnreadableVideo = fmt.Errorf("%w: file is not a playable video", ErrValidation)

	// ErrSuperseded is reported by work whose video was replaced or reset while it ran.
	// Its result was discarded.
	ErrSuperseded = errors.New("pipeline: superseded by a newer video or a reset")
	// ErrFrameNotFound is returned for an unknown frame id.
	ErrFrameNotFound = errors.New("pipeline: frame not found")
	// ErrSessionClosed is returned by every operation after Close.
	ErrSessionClosed = errors.New("pipeline: session closed")
)

// CaptureError reports a failed capture at one timestamp.
type CaptureError struct {
	Timestamp float64
	Err       error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("frame capture at %s (%.3fs): %v", FormatTime(e.Timestamp), e.Timestamp, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is makes every CaptureError match ErrFrameCapture.
func (e *CaptureError) Is(target error) bool {
	return target == ErrFrameCapture
}

// GenerationError reports a failed generate or refine call.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is makes every GenerationError match ErrGeneration.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}
