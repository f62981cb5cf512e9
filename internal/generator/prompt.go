package generator

import (
	"fmt"
	"strings"

	"github.com/maauso/thumbnail-studio/internal/thumbnail"
)

// defaultExtraInstruction is used when the user leaves the additional prompt blank.
const defaultExtraInstruction = "Make it look exactly like a Season 2 Official high-budget anime release poster."

// styleDirections describes the look requested for each style.
var styleDirections = map[thumbnail.Style]string{
	thumbnail.StyleCinematic: "Epic, stormy, dark background with dramatic film lighting and a movie-poster grade.",
	thumbnail.StyleGaming:    "Neon-lit esports arena energy, saturated colors, glowing HUD-like accents.",
	thumbnail.StyleVlog:      "Bright, natural daylight look with clean backgrounds and friendly, expressive faces.",
	thumbnail.StyleAnime:     "Cel-shaded anime key-visual look with bold linework and speed lines.",
}

// BuildGeneratePrompt renders the structured instruction sent with the source frames.
func BuildGeneratePrompt(s thumbnail.Settings) string {
	extra := strings.TrimSpace(s.AdditionalPrompt)
	if extra == "" {
		extra = defaultExtraInstruction
	}
	look, ok := styleDirections[s.Style]
	if !ok {
		look = styleDirections[thumbnail.StyleCinematic]
	}

	var b strings.Builder
	b.WriteString("Task: Create a high-energy, cinematic 16:9 YouTube thumbnail based on the provided character frames.\n\n")

	b.WriteString("Style Reference:\n")
	fmt.Fprintf(&b, "- Look (%s): %s\n", s.Style, look)
	b.WriteString("- Effects: Intense glowing energy/lightning effects (blue and red/orange) swirling around characters.\n")
	b.WriteString("- Quality: 4K, high contrast, professional digital art look.\n\n")

	b.WriteString("Character Details:\n")
	fmt.Fprintf(&b, "- Number of characters to feature: %s.\n", s.CharacterLabel())
	b.WriteString("- Pose: Use the poses from the provided images, making them even more dynamic and heroic.\n")
	b.WriteString("- Design: Add elemental armor or glowing markings as seen in top-tier action anime/gaming thumbnails.\n\n")

	b.WriteString("Text Overlay (MANDATORY):\n")
	fmt.Fprintf(&b, "- Primary Text: %q\n", s.MainText)
	fmt.Fprintf(&b, "- Secondary/Sub Text: %q\n", s.SubText)
	fmt.Fprintf(&b, "- Position: Place both texts at the %s of the image.\n", s.TextPosition.Phrase())
	b.WriteString("- Font Style: Bold, heavy font, thick black outline, vibrant yellow or white color (like a modern YouTube thumbnail).\n\n")

	b.WriteString("Additional Instructions:\n")
	fmt.Fprintf(&b, "- %s\n", extra)
	b.WriteString("- Ensure the character faces are clear and expressive.\n")

	return b.String()
}

// BuildRefinePrompt renders the edit instruction sent with a prior result.
func BuildRefinePrompt(instruction string) string {
	return fmt.Sprintf("Refine this thumbnail: %s. Maintain the cinematic style and character poses but adjust the specific elements requested.",
		strings.TrimSpace(instruction))
}
