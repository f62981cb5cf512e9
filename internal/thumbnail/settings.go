// Package thumbnail defines the user-editable settings that steer thumbnail generation.
package thumbnail

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for settings validation.
var (
	// ErrInvalidCharacterCount is returned when the character count is outside 1..3.
	ErrInvalidCharacterCount = errors.New("thumbnail: character count must be 1, 2 or 3 (3 means 3+)")
	// ErrInvalidStyle is returned for an unknown style.
	ErrInvalidStyle = errors.New("thumbnail: unknown style")
	// ErrInvalidTextPosition is returned for an unknown text position.
	ErrInvalidTextPosition = errors.New("thumbnail: unknown text position")
)

// Style is the overall look requested from the generator.
type Style string

// Supported styles.
const (
	StyleCinematic Style = "cinematic"
	StyleGaming    Style = "gaming"
	StyleVlog      Style = "vlog"
	StyleAnime     Style = "anime"
)

// IsValid returns true if the style is one of the supported values.
func (s Style) IsValid() bool {
	switch s {
	case StyleCinematic, StyleGaming, StyleVlog, StyleAnime:
		return true
	default:
		return false
	}
}

// TextPosition is where the text overlay is placed on the thumbnail.
type TextPosition string

// Supported text positions.
const (
	PositionTopLeft     TextPosition = "top-left"
	PositionTopRight    TextPosition = "top-right"
	PositionBottomLeft  TextPosition = "bottom-left"
	PositionBottomRight TextPosition = "bottom-right"
	PositionCenter      TextPosition = "center"
)

// IsValid returns true if the position is one of the supported values.
func (p TextPosition) IsValid() bool {
	switch p {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight, PositionCenter:
		return true
	default:
		return false
	}
}

// Phrase returns the position as prose, e.g. "bottom left".
func (p TextPosition) Phrase() string {
	return strings.Replace(string(p), "-", " ", 1)
}

// MaxCharacterCount is the largest selectable character count. It stands for "3+".
const MaxCharacterCount = 3

// Settings is the snapshot of thumbnail options sent along with each generation request.
type Settings struct {
	CharacterCount   int          `json:"character_count"`
	AdditionalPrompt string       `json:"additional_prompt"`
	Style            Style        `json:"style"`
	MainText         string       `json:"main_text"`
	SubText          string       `json:"sub_text"`
	TextPosition     TextPosition `json:"text_position"`
}

// Defaults returns the settings a fresh session starts with.
func Defaults() Settings {
	return Settings{
		CharacterCount:   2,
		AdditionalPrompt: "",
		Style:            StyleCinematic,
		MainText:         "SEASON 2",
		SubText:          "OFFICIAL",
		TextPosition:     PositionBottomLeft,
	}
}

// Validate checks that every enumerated field holds a supported value.
func (s Settings) Validate() error {
	if s.CharacterCount < 1 || s.CharacterCount > MaxCharacterCount {
		return fmt.Errorf("%w: got %d", ErrInvalidCharacterCount, s.CharacterCount)
	}
	if !s.Style.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStyle, s.Style)
	}
	if !s.TextPosition.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTextPosition, s.TextPosition)
	}
	return nil
}

// Normalize returns a copy with the overlay texts upper-cased and the free text trimmed.
func (s Settings) Normalize() Settings {
	s.MainText = strings.ToUpper(s.MainText)
	s.SubText = strings.ToUpper(s.SubText)
	s.AdditionalPrompt = strings.TrimSpace(s.AdditionalPrompt)
	return s
}

// CharacterLabel renders the character count the way the picker shows it ("3+" for the maximum).
func (s Settings) CharacterLabel() string {
	if s.CharacterCount >= MaxCharacterCount {
		return fmt.Sprintf("%d+", MaxCharacterCount)
	}
	return fmt.Sprintf("%d", s.CharacterCount)
}
