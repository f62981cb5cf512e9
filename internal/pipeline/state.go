// Package pipeline holds the thumbnail pipeline state and the orchestrator that
// drives it: load video, extract frames, select, generate, refine, reset.
//
// State is a value. Every transition returns a new State and never mutates its
// receiver, so the orchestrator can compute a transition, check its own epoch and
// only then publish the result.
package pipeline

import (
	"strings"

	"github.com/maauso/thumbnail-studio/internal/media"
	"github.com/maauso/thumbnail-studio/internal/thumbnail"
)

// Status messages shown to the user.
const (
	StatusVideoLoaded      = "Video Loaded"
	StatusAutoExtracting   = "Finding epic character moments..."
	StatusMomentsCaptured  = "Moments captured!"
	StatusFrameCaptured    = "Frame captured successfully!"
	StatusGenerating       = "AI is hand-crafting your thumbnail..."
	StatusMasterpieceReady = "Masterpiece Ready!"
	StatusError            = "Error occurred."
	StatusRefining         = "Applying magic edits..."
	StatusChangesApplied   = "Changes applied!"
	StatusReset            = "App Reset Successfully"
)

// capturingStatus is shown while a manual capture runs.
func capturingStatus(input string) string {
	return "Capturing at " + input + "..."
}

// Frame is a still captured from the video. Frames are immutable once created.
type Frame struct {
	ID        string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	// Image is a PNG data URL at the video's native dimensions.
	Image string `json:"-"`
}

// State is the whole pipeline state of one session.
type State struct {
	Video           *media.Video
	Frames          []Frame
	Selected        map[string]struct{}
	Result          string
	IsExtracting    bool
	IsGenerating    bool
	Status          string
	Settings        thumbnail.Settings
	EditInstruction string
	// LastError describes the most recent failed extraction, generation or refine.
	// The next attempt of the same kind clears it.
	LastError string
	// LastFailures lists the slots the most recent extraction could not capture.
	LastFailures []*CaptureError
}

// Initial returns the state of a fresh session.
func Initial() State {
	return State{
		Selected: map[string]struct{}{},
		Settings: thumbnail.Defaults(),
	}
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s State) Clone() State {
	out := s
	if s.Video != nil {
		v := *s.Video
		out.Video = &v
	}
	if s.Frames != nil {
		out.Frames = append([]Frame(nil), s.Frames...)
	}
	if s.LastFailures != nil {
		out.LastFailures = append([]*CaptureError(nil), s.LastFailures...)
	}
	out.Selected = make(map[string]struct{}, len(s.Selected))
	for id := range s.Selected {
		out.Selected[id] = struct{}{}
	}
	return out
}

// WithVideo binds a new video and drops everything derived from the previous one.
// Settings and the pending edit instruction survive.
func (s State) WithVideo(v media.Video) State {
	out := s.Clone()
	out.Video = &v
	out.Frames = nil
	out.Selected = map[string]struct{}{}
	out.Result = ""
	out.IsExtracting = false
	out.IsGenerating = false
	out.LastError = ""
	out.LastFailures = nil
	out.Status = StatusVideoLoaded
	return out
}

// BeginExtract marks a capture as in flight.
func (s State) BeginExtract(status string) (State, error) {
	if s.Video == nil {
		return s, ErrNoVideo
	}
	if s.IsExtracting {
		return s, ErrExtractionInProgress
	}
	out := s.Clone()
	out.IsExtracting = true
	out.LastError = ""
	out.LastFailures = nil
	out.Status = status
	return out, nil
}

// AppendFrames ends an extraction by appending frames in the given order.
// failures records the slots that were skipped on the way.
func (s State) AppendFrames(frames []Frame, status string, failures ...*CaptureError) State {
	out := s.Clone()
	out.Frames = append(out.Frames, frames...)
	out.IsExtracting = false
	out.LastError = ""
	out.LastFailures = append([]*CaptureError(nil), failures...)
	if len(out.LastFailures) == 0 {
		out.LastFailures = nil
	}
	out.Status = status
	return out
}

// FailExtract ends an extraction that produced nothing.
func (s State) FailExtract(err error, failures ...*CaptureError) State {
	out := s.Clone()
	out.IsExtracting = false
	out.LastError = errorText(err)
	out.LastFailures = append([]*CaptureError(nil), failures...)
	if len(out.LastFailures) == 0 {
		out.LastFailures = nil
	}
	out.Status = StatusError
	return out
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Frame looks a frame up by id.
func (s State) Frame(id string) (Frame, bool) {
	for _, f := range s.Frames {
		if f.ID == id {
			return f, true
		}
	}
	return Frame{}, false
}

// IsSelected reports whether id is in the selection.
func (s State) IsSelected(id string) bool {
	_, ok := s.Selected[id]
	return ok
}

// ToggleSelect flips the selection of a known frame. Unknown ids are a no-op.
func (s State) ToggleSelect(id string) State {
	if _, ok := s.Frame(id); !ok {
		return s
	}
	out := s.Clone()
	if out.IsSelected(id) {
		delete(out.Selected, id)
	} else {
		out.Selected[id] = struct{}{}
	}
	return out
}

// RemoveFrame deletes a frame and prunes it from the selection.
func (s State) RemoveFrame(id string) (State, bool) {
	idx := -1
	for i, f := range s.Frames {
		if f.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, false
	}
	out := s.Clone()
	out.Frames = append(out.Frames[:idx], out.Frames[idx+1:]...)
	delete(out.Selected, id)
	return out, true
}

// SelectedIDs returns the selected frame ids in frame order.
func (s State) SelectedIDs() []string {
	ids := make([]string, 0, len(s.Selected))
	for _, f := range s.Frames {
		if s.IsSelected(f.ID) {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// SelectedImages returns the images of the selected frames in frame order.
func (s State) SelectedImages() []string {
	images := make([]string, 0, len(s.Selected))
	for _, f := range s.Frames {
		if s.IsSelected(f.ID) {
			images = append(images, f.Image)
		}
	}
	return images
}

// BeginGenerate marks a generate call as in flight.
func (s State) BeginGenerate() (State, error) {
	if s.IsGenerating {
		return s, ErrGenerationInProgress
	}
	if len(s.Selected) == 0 {
		return s, ErrNothingSelected
	}
	out := s.Clone()
	out.IsGenerating = true
	out.LastError = ""
	out.Status = StatusGenerating
	return out, nil
}

// BeginRefine marks a refine call as in flight and records the instruction.
func (s State) BeginRefine(instruction string) (State, error) {
	if s.IsGenerating {
		return s, ErrGenerationInProgress
	}
	if s.Result == "" {
		return s, ErrNoResult
	}
	if strings.TrimSpace(instruction) == "" {
		return s, ErrEmptyInstruction
	}
	out := s.Clone()
	out.IsGenerating = true
	out.EditInstruction = instruction
	out.LastError = ""
	out.Status = StatusRefining
	return out, nil
}

// CompleteGenerate stores a freshly generated result.
func (s State) CompleteGenerate(result string) State {
	out := s.Clone()
	out.Result = result
	out.IsGenerating = false
	out.Status = StatusMasterpieceReady
	return out
}

// CompleteRefine replaces the result and clears the edit instruction.
func (s State) CompleteRefine(result string) State {
	out := s.Clone()
	out.Result = result
	out.EditInstruction = ""
	out.IsGenerating = false
	out.Status = StatusChangesApplied
	return out
}

// FailGenerate ends a generate or refine call, leaving the prior result untouched.
func (s State) FailGenerate(err error) State {
	out := s.Clone()
	out.IsGenerating = false
	out.LastError = errorText(err)
	out.Status = StatusError
	return out
}

// WithSettings replaces the thumbnail settings.
func (s State) WithSettings(settings thumbnail.Settings) State {
	out := s.Clone()
	out.Settings = settings
	return out
}

// Reset returns the initial state carrying the confirmation message.
func (s State) Reset() State {
	out := Initial()
	out.Status = StatusReset
	return out
}

// ClearStatus blanks the status message if it still reads expected.
func (s State) ClearStatus(expected string) State {
	if s.Status != expected {
		return s
	}
	out := s.Clone()
	out.Status = ""
	return out
}
