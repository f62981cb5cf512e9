// Package generator provides the common interface for thumbnail generation providers.
package generator

import (
	"context"
	"errors"

	"github.com/maauso/thumbnail-studio/internal/thumbnail"
)

// Static errors for generation.
var (
	// ErrNoSourceImages is returned when Generate is called without any frame.
	ErrNoSourceImages = errors.New("generator: at least one source image is required")
	// ErrNoImage is returned when the provider answers without an image.
	ErrNoImage = errors.New("generator: provider returned no image")
	// ErrInvalidImage is returned when the provider's image cannot be decoded.
	ErrInvalidImage = errors.New("generator: provider returned an undecodable image")
	// ErrEmptyInstruction is returned when Refine is called with a blank instruction.
	ErrEmptyInstruction = errors.New("generator: refine instruction is empty")
)

// Generator defines the interface for image generation providers.
// Images travel as data URLs in both directions.
type Generator interface {
	// Generate composes the source frames into one thumbnail steered by settings.
	// It returns exactly one image or an error; there are no partial results.
	Generate(ctx context.Context, images []string, settings thumbnail.Settings) (string, error)

	// Refine applies a free-text edit instruction to a previously generated image,
	// preserving its composition.
	Refine(ctx context.Context, image, instruction string) (string, error)
}
