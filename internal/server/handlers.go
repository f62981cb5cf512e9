package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/thumbnail-studio/internal/media"
	"github.com/maauso/thumbnail-studio/internal/pipeline"
	"github.com/maauso/thumbnail-studio/internal/session"
	"github.com/maauso/thumbnail-studio/internal/session/id"
	"github.com/maauso/thumbnail-studio/internal/storage"
)

// DownloadFileName is the attachment name of the generated thumbnail.
const DownloadFileName = "nano-thumbnail-pro.png"

// DefaultMaxUploadBytes caps video uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 512 << 20

// SessionFactory builds a new pipeline session with the given id.
type SessionFactory func(id string) *pipeline.Session

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	registry           session.Registry
	newSession         SessionFactory
	storage            storage.Storage
	validator          *validator.Validate
	logger             *slog.Logger
	maxUploadBytes     int64
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, auto extraction, generation and refinement block until the
// operation completes and the response carries its outcome.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMaxUploadBytes limits the size of uploaded videos.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	registry session.Registry,
	factory SessionFactory,
	store storage.Storage,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		registry:           registry,
		newSession:         factory,
		storage:            store,
		validator:          validator.New(),
		logger:             logger,
		maxUploadBytes:     DefaultMaxUploadBytes,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateSession handles POST /sessions requests.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.newSession(id.Generate())
	if err := h.registry.Add(r.Context(), s); err != nil {
		h.logger.Error("failed to register session",
			slog.String("session_id", s.ID()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create session", "SESSION_CREATION_FAILED")
		return
	}

	h.logger.Info("session created", slog.String("session_id", s.ID()))
	writeJSON(w, http.StatusCreated, newSessionResponse(s.ID(), s.Snapshot()))
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.ID(), s.Snapshot()))
}

// DeleteSession handles DELETE /sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.Close(context.WithoutCancel(r.Context()))
	h.logger.Info("session deleted", slog.String("session_id", s.ID()))
	w.WriteHeader(http.StatusNoContent)
}

// UploadVideo handles POST /sessions/{id}/video requests.
// The video is streamed from the multipart "video" field into temporary storage.
func (h *Handlers) UploadVideo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart/form-data body", "INVALID_MULTIPART")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "missing \"video\" file field", "MISSING_VIDEO")
			return
		}
		if err != nil {
			h.writeUploadError(w, s.ID(), err)
			return
		}
		if part.FormName() != "video" {
			_ = part.Close()
			continue
		}

		name := part.FileName()
		path, err := h.storage.SaveTemp(r.Context(), name, part)
		_ = part.Close()
		if err != nil {
			h.writeUploadError(w, s.ID(), err)
			return
		}

		if _, err := s.LoadVideo(r.Context(), path, name); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(s.ID(), s.Snapshot()))
		return
	}
}

func (h *Handlers) writeUploadError(w http.ResponseWriter, sessionID string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("video exceeds the %d byte upload limit", tooLarge.Limit), "UPLOAD_TOO_LARGE")
		return
	}
	h.logger.Error("failed to store upload",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusBadRequest, "failed to read uploaded video", "UPLOAD_FAILED")
}

// AutoExtract handles POST /sessions/{id}/frames/auto requests.
func (h *Handlers) AutoExtract(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if h.enableAsyncProcess {
		if _, err := s.StartAutoExtract(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, AutoExtractResponse{Session: newSessionResponse(s.ID(), s.Snapshot())})
		return
	}

	res, err := s.AutoExtract(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap := s.Snapshot()
	captured := make([]FrameResponse, 0, len(res.Frames))
	for _, f := range res.Frames {
		captured = append(captured, newFrameResponse(s.ID(), f, snap.IsSelected(f.ID)))
	}
	writeJSON(w, http.StatusOK, AutoExtractResponse{
		Session:  newSessionResponse(s.ID(), snap),
		Captured: captured,
		Failures: newFailureResponses(res.Failures),
	})
}

// ManualExtract handles POST /sessions/{id}/frames requests.
func (h *Handlers) ManualExtract(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ManualExtractRequest
	if !h.decode(w, r, &req) {
		return
	}

	frame, err := s.ManualExtract(r.Context(), req.Time)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newFrameResponse(s.ID(), frame, false))
}

// RemoveFrame handles DELETE /sessions/{id}/frames/{frameID} requests.
func (h *Handlers) RemoveFrame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveFrame(chi.URLParam(r, "frameID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFrame handles POST /sessions/{id}/frames/{frameID}/toggle requests.
func (h *Handlers) ToggleFrame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	frameID := chi.URLParam(r, "frameID")
	selected, err := s.ToggleSelect(frameID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{FrameID: frameID, Selected: selected})
}

// FrameImage handles GET /sessions/{id}/frames/{frameID}/image requests.
func (h *Handlers) FrameImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	frame, err := s.Frame(chi.URLParam(r, "frameID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.writeImage(w, frame.Image, "")
}

// UpdateSettings handles PUT /sessions/{id}/settings requests.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SettingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := s.UpdateSettings(req.toSettings()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.ID(), s.Snapshot()))
}

// Generate handles POST /sessions/{id}/generate requests.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if h.enableAsyncProcess {
		if _, err := s.StartGenerate(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, newSessionResponse(s.ID(), s.Snapshot()))
		return
	}

	if _, err := s.Generate(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.ID(), s.Snapshot()))
}

// Refine handles POST /sessions/{id}/refine requests.
func (h *Handlers) Refine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req RefineRequest
	if !h.decode(w, r, &req) {
		return
	}

	if h.enableAsyncProcess {
		if _, err := s.StartRefine(r.Context(), req.Instruction); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, newSessionResponse(s.ID(), s.Snapshot()))
		return
	}

	if _, err := s.Refine(r.Context(), req.Instruction); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.ID(), s.Snapshot()))
}

// Reset handles POST /sessions/{id}/reset requests.
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Reset(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, newSessionResponse(s.ID(), s.Snapshot()))
}

// DownloadThumbnail handles GET /sessions/{id}/thumbnail requests.
func (h *Handlers) DownloadThumbnail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := s.Result()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.writeImage(w, result, DownloadFileName)
}

// ExportThumbnail handles POST /sessions/{id}/thumbnail/export requests.
func (h *Handlers) ExportThumbnail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := s.Result()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	mimeType, data, err := media.DecodeDataURL(result)
	if err != nil {
		h.logger.Error("stored thumbnail is not a data URL",
			slog.String("session_id", s.ID()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
		return
	}

	key := fmt.Sprintf("thumbnails/%s/%s-%s", s.ID(), strconv.FormatInt(time.Now().Unix(), 10), DownloadFileName)
	url, err := h.storage.Publish(r.Context(), key, mimeType, bytes.NewReader(data))
	if err != nil {
		if !errors.Is(err, storage.ErrPublishNotConfigured) {
			h.logger.Error("failed to export thumbnail",
				slog.String("session_id", s.ID()),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "failed to export thumbnail", "EXPORT_FAILED")
			return
		}
		writeDomainError(w, err)
		return
	}

	h.logger.Info("thumbnail exported",
		slog.String("session_id", s.ID()),
		slog.String("url", url),
	)
	writeJSON(w, http.StatusOK, ExportResponse{URL: url})
}

// session resolves the {id} path parameter, writing a 404 when unknown.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	s, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return s, true
}

// decode reads and validates a JSON body into dst.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeImage decodes a data URL and writes the raw bytes. A non-empty
// attachment name sets Content-Disposition.
func (h *Handlers) writeImage(w http.ResponseWriter, dataURL, attachment string) {
	mimeType, data, err := media.DecodeDataURL(dataURL)
	if err != nil {
		h.logger.Error("failed to decode image", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if attachment != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
