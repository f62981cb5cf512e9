package thumbnail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	d := Defaults()

	assert.Equal(t, 2, d.CharacterCount)
	assert.Equal(t, StyleCinematic, d.Style)
	assert.Equal(t, "SEASON 2", d.MainText)
	assert.Equal(t, "OFFICIAL", d.SubText)
	assert.Equal(t, PositionBottomLeft, d.TextPosition)
	assert.Empty(t, d.AdditionalPrompt)
	assert.NoError(t, d.Validate())
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{"defaults", func(*Settings) {}, nil},
		{"one character", func(s *Settings) { s.CharacterCount = 1 }, nil},
		{"three plus", func(s *Settings) { s.CharacterCount = 3 }, nil},
		{"zero characters", func(s *Settings) { s.CharacterCount = 0 }, ErrInvalidCharacterCount},
		{"four characters", func(s *Settings) { s.CharacterCount = 4 }, ErrInvalidCharacterCount},
		{"unknown style", func(s *Settings) { s.Style = "noir" }, ErrInvalidStyle},
		{"empty style", func(s *Settings) { s.Style = "" }, ErrInvalidStyle},
		{"unknown position", func(s *Settings) { s.TextPosition = "middle" }, ErrInvalidTextPosition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSettings_Normalize(t *testing.T) {
	s := Settings{MainText: "hindi", SubText: "#06 season 2", AdditionalPrompt: "  red lightning \n"}

	got := s.Normalize()

	assert.Equal(t, "HINDI", got.MainText)
	assert.Equal(t, "#06 SEASON 2", got.SubText)
	assert.Equal(t, "red lightning", got.AdditionalPrompt)
	assert.Equal(t, "hindi", s.MainText, "original must not be modified")
}

func TestTextPosition_Phrase(t *testing.T) {
	assert.Equal(t, "bottom left", PositionBottomLeft.Phrase())
	assert.Equal(t, "top right", PositionTopRight.Phrase())
	assert.Equal(t, "center", PositionCenter.Phrase())
}

func TestSettings_CharacterLabel(t *testing.T) {
	assert.Equal(t, "1", Settings{CharacterCount: 1}.CharacterLabel())
	assert.Equal(t, "2", Settings{CharacterCount: 2}.CharacterLabel())
	assert.Equal(t, "3+", Settings{CharacterCount: 3}.CharacterLabel())
}
