package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/maauso/thumbnail-studio/internal/gemini"
	"github.com/maauso/thumbnail-studio/internal/media"
	"github.com/maauso/thumbnail-studio/internal/thumbnail"
)

// GeminiAdapter adapts the Gemini client to the Generator interface.
type GeminiAdapter struct {
	client      gemini.Client
	model       string
	aspectRatio string
}

// GeminiOption configures a GeminiAdapter.
type GeminiOption func(*GeminiAdapter)

// WithModel overrides the model name.
func WithModel(model string) GeminiOption {
	return func(a *GeminiAdapter) {
		if model != "" {
			a.model = model
		}
	}
}

// WithAspectRatio overrides the requested output aspect ratio.
func WithAspectRatio(ratio string) GeminiOption {
	return func(a *GeminiAdapter) {
		if ratio != "" {
			a.aspectRatio = ratio
		}
	}
}

// NewGeminiAdapter creates a new Gemini generator adapter.
func NewGeminiAdapter(client gemini.Client, opts ...GeminiOption) *GeminiAdapter {
	a := &GeminiAdapter{
		client:      client,
		model:       gemini.DefaultModel,
		aspectRatio: "16:9",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate sends the frames followed by the settings prompt.
func (a *GeminiAdapter) Generate(ctx context.Context, images []string, settings thumbnail.Settings) (string, error) {
	if len(images) == 0 {
		return "", ErrNoSourceImages
	}

	parts := make([]gemini.Part, 0, len(images)+1)
	for i, img := range images {
		part, err := inlinePart(img)
		if err != nil {
			return "", fmt.Errorf("gemini adapter generate: image %d: %w", i, err)
		}
		parts = append(parts, part)
	}
	parts = append(parts, gemini.Part{Text: BuildGeneratePrompt(settings)})

	out, err := a.call(ctx, parts)
	if err != nil {
		return "", fmt.Errorf("gemini adapter generate: %w", err)
	}
	return out, nil
}

// Refine sends the prior result followed by the edit instruction.
func (a *GeminiAdapter) Refine(ctx context.Context, image, instruction string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", ErrEmptyInstruction
	}

	part, err := inlinePart(image)
	if err != nil {
		return "", fmt.Errorf("gemini adapter refine: %w", err)
	}

	out, err := a.call(ctx, []gemini.Part{part, {Text: BuildRefinePrompt(instruction)}})
	if err != nil {
		return "", fmt.Errorf("gemini adapter refine: %w", err)
	}
	return out, nil
}

func (a *GeminiAdapter) call(ctx context.Context, parts []gemini.Part) (string, error) {
	req := gemini.GenerateContentRequest{
		Contents: []gemini.Content{{Parts: parts}},
		GenerationConfig: &gemini.GenerationConfig{
			ImageConfig: &gemini.ImageConfig{AspectRatio: a.aspectRatio},
		},
	}

	resp, err := a.client.GenerateContent(ctx, a.model, req)
	if err != nil {
		return "", err
	}

	img, ok := resp.FirstInlineData()
	if !ok {
		if text := strings.TrimSpace(resp.Text()); text != "" {
			return "", fmt.Errorf("%w: model replied %q", ErrNoImage, text)
		}
		return "", ErrNoImage
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = media.MIMETypePNG
	}
	out := "data:" + mimeType + ";base64," + img.Data
	if _, _, err := media.ImageSize(out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return out, nil
}

// inlinePart turns a data URL into an inline data part without re-encoding the payload.
func inlinePart(dataURL string) (gemini.Part, error) {
	mimeType, payload, err := media.SplitDataURL(dataURL)
	if err != nil {
		return gemini.Part{}, err
	}
	return gemini.Part{InlineData: &gemini.InlineData{MimeType: mimeType, Data: payload}}, nil
}

// Compile-time check that GeminiAdapter implements Generator.
var _ Generator = (*GeminiAdapter)(nil)
