// Package server provides the HTTP server for the thumbnail studio API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"fmt"

	"github.com/maauso/thumbnail-studio/internal/pipeline"
	"github.com/maauso/thumbnail-studio/internal/thumbnail"
)

// SettingsRequest is the HTTP request body for updating thumbnail settings.
type SettingsRequest struct {
	// CharacterCount is 1, 2 or 3 (3 means "3+").
	CharacterCount int `json:"character_count" validate:"min=1,max=3"`
	// AdditionalPrompt is free-text styling guidance.
	AdditionalPrompt string `json:"additional_prompt" validate:"max=1000"`
	// Style is the overall look.
	Style string `json:"style" validate:"required,oneof=cinematic gaming vlog anime"`
	// MainText is the primary overlay text.
	MainText string `json:"main_text" validate:"max=80"`
	// SubText is the secondary overlay text.
	SubText string `json:"sub_text" validate:"max=80"`
	// TextPosition is where the overlay goes.
	TextPosition string `json:"text_position" validate:"required,oneof=top-left top-right bottom-left bottom-right center"`
}

// toSettings converts the request into domain settings.
func (r SettingsRequest) toSettings() thumbnail.Settings {
	return thumbnail.Settings{
		CharacterCount:   r.CharacterCount,
		AdditionalPrompt: r.AdditionalPrompt,
		Style:            thumbnail.Style(r.Style),
		MainText:         r.MainText,
		SubText:          r.SubText,
		TextPosition:     thumbnail.TextPosition(r.TextPosition),
	}
}

// ManualExtractRequest is the HTTP request body for a manual capture.
type ManualExtractRequest struct {
	// Time is "MM:SS" or "SS".
	Time string `json:"time" validate:"max=16"`
}

// RefineRequest is the HTTP request body for refining the generated thumbnail.
// An empty instruction is a precondition failure, not a validation error.
type RefineRequest struct {
	Instruction string `json:"instruction" validate:"max=1000"`
}

// VideoResponse describes the loaded video.
type VideoResponse struct {
	Name          string  `json:"name"`
	Duration      float64 `json:"duration"`
	DurationLabel string  `json:"duration_label"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Codec         string  `json:"codec,omitempty"`
}

// FrameResponse describes one captured frame.
type FrameResponse struct {
	ID        string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	// Label is the timestamp rendered as M:SS.
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
	ImageURL string `json:"image_url"`
}

// SessionResponse is the HTTP view of a session's pipeline state.
type SessionResponse struct {
	ID               string             `json:"id"`
	Video            *VideoResponse     `json:"video,omitempty"`
	Frames           []FrameResponse    `json:"frames"`
	SelectedFrameIDs []string           `json:"selected_frame_ids"`
	ResultURL        string             `json:"result_url,omitempty"`
	IsExtracting     bool               `json:"is_extracting"`
	IsGenerating     bool               `json:"is_generating"`
	Status           string             `json:"status"`
	Settings         thumbnail.Settings `json:"settings"`
	EditInstruction  string             `json:"edit_instruction,omitempty"`
	// LastError describes the most recent failed operation.
	LastError string `json:"last_error,omitempty"`
	// CaptureFailures lists the frames the most recent extraction could not capture.
	CaptureFailures []FailureResponse `json:"capture_failures,omitempty"`
}

// FailureResponse describes one frame that could not be captured.
type FailureResponse struct {
	Timestamp float64 `json:"timestamp"`
	Label     string  `json:"label"`
	Error     string  `json:"error"`
}

// AutoExtractResponse is returned by POST /sessions/{id}/frames/auto.
// Captured and Failures are only filled when the request waited for the batch.
type AutoExtractResponse struct {
	Session  SessionResponse   `json:"session"`
	Captured []FrameResponse   `json:"captured,omitempty"`
	Failures []FailureResponse `json:"failures,omitempty"`
}

// ToggleResponse is returned after toggling a frame's selection.
type ToggleResponse struct {
	FrameID  string `json:"frame_id"`
	Selected bool   `json:"selected"`
}

// ExportResponse is returned after publishing the thumbnail.
type ExportResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func frameImageURL(sessionID, frameID string) string {
	return fmt.Sprintf("/sessions/%s/frames/%s/image", sessionID, frameID)
}

func newFrameResponse(sessionID string, f pipeline.Frame, selected bool) FrameResponse {
	return FrameResponse{
		ID:        f.ID,
		Timestamp: f.Timestamp,
		Label:     pipeline.FormatTime(f.Timestamp),
		Selected:  selected,
		ImageURL:  frameImageURL(sessionID, f.ID),
	}
}

// newSessionResponse maps a state snapshot to its HTTP view.
func newSessionResponse(id string, s pipeline.State) SessionResponse {
	resp := SessionResponse{
		ID:               id,
		Frames:           make([]FrameResponse, 0, len(s.Frames)),
		SelectedFrameIDs: s.SelectedIDs(),
		IsExtracting:     s.IsExtracting,
		IsGenerating:     s.IsGenerating,
		Status:           s.Status,
		Settings:         s.Settings,
		EditInstruction:  s.EditInstruction,
		LastError:        s.LastError,
	}
	if len(s.LastFailures) > 0 {
		resp.CaptureFailures = newFailureResponses(s.LastFailures)
	}
	if s.Video != nil {
		resp.Video = &VideoResponse{
			Name:          s.Video.Name,
			Duration:      s.Video.Duration,
			DurationLabel: pipeline.FormatTime(s.Video.Duration),
			Width:         s.Video.Width,
			Height:        s.Video.Height,
			Codec:         s.Video.Codec,
		}
	}
	for _, f := range s.Frames {
		resp.Frames = append(resp.Frames, newFrameResponse(id, f, s.IsSelected(f.ID)))
	}
	if s.Result != "" {
		resp.ResultURL = fmt.Sprintf("/sessions/%s/thumbnail", id)
	}
	return resp
}

func newFailureResponses(failures []*pipeline.CaptureError) []FailureResponse {
	out := make([]FailureResponse, 0, len(failures))
	for _, f := range failures {
		out = append(out, FailureResponse{
			Timestamp: f.Timestamp,
			Label:     pipeline.FormatTime(f.Timestamp),
			Error:     f.Err.Error(),
		})
	}
	return out
}
