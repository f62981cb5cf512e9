package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maauso/thumbnail-studio/internal/generator"
	"github.com/maauso/thumbnail-studio/internal/media"
	"github.com/maauso/thumbnail-studio/internal/metrics"
	"github.com/maauso/thumbnail-studio/internal/thumbnail"
)

// AutoFrameCount is the number of frames captured by AutoExtract.
const AutoFrameCount = 8

// Defaults for Session timeouts.
const (
	DefaultCaptureTimeout   = 30 * time.Second
	DefaultGenerateTimeout  = 120 * time.Second
	DefaultStatusClearDelay = 2 * time.Second
)

// Cleaner releases files backing a video. storage.Storage satisfies it.
type Cleaner interface {
	CleanupTemp(ctx context.Context, paths []string) error
}

// BatchResult is the outcome of an automatic extraction.
type BatchResult struct {
	// Frames holds the appended frames in timestamp order.
	Frames []Frame
	// Failures lists the slots that could not be captured.
	Failures []*CaptureError
	// Err is set when the batch appended nothing.
	Err error
}

// OpResult is the outcome of a generate or refine call.
type OpResult struct {
	Image string
	Err   error
}

// Session orchestrates one user's pipeline. It is safe for concurrent use.
//
// Long operations run on their own goroutine and cannot be cancelled once
// started; a per-call timeout bounds them instead. Loading a new video, Reset and
// Close advance an epoch so that late completions are dropped.
type Session struct {
	id        string
	prober    media.Prober
	sampler   media.Sampler
	generator generator.Generator
	cleaner   Cleaner
	logger    *slog.Logger

	policy           BatchPolicy
	captureTimeout   time.Duration
	generateTimeout  time.Duration
	statusClearDelay time.Duration
	newFrameID       func() string

	mu         sync.Mutex
	state      State
	epoch      uint64
	closed     bool
	clearTimer *time.Timer
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCleaner sets where released videos go.
func WithCleaner(c Cleaner) Option {
	return func(s *Session) {
		s.cleaner = c
	}
}

// WithBatchPolicy sets how AutoExtract treats a failed slot.
func WithBatchPolicy(p BatchPolicy) Option {
	return func(s *Session) {
		if p.IsValid() {
			s.policy = p
		}
	}
}

// WithCaptureTimeout bounds a single frame capture.
func WithCaptureTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.captureTimeout = d
		}
	}
}

// WithGenerateTimeout bounds a single generate or refine call.
func WithGenerateTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.generateTimeout = d
		}
	}
}

// WithStatusClearDelay sets how long the reset confirmation stays visible.
func WithStatusClearDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.statusClearDelay = d
		}
	}
}

// WithFrameIDGenerator replaces the uuid frame id generator.
func WithFrameIDGenerator(fn func() string) Option {
	return func(s *Session) {
		if fn != nil {
			s.newFrameID = fn
		}
	}
}

// NewSession creates a session in the initial state.
func NewSession(id string, prober media.Prober, sampler media.Sampler, gen generator.Generator, opts ...Option) *Session {
	s := &Session{
		id:               id,
		prober:           prober,
		sampler:          sampler,
		generator:        gen,
		logger:           slog.Default(),
		policy:           BatchSkip,
		captureTimeout:   DefaultCaptureTimeout,
		generateTimeout:  DefaultGenerateTimeout,
		statusClearDelay: DefaultStatusClearDelay,
		newFrameID:       uuid.NewString,
		state:            Initial(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "pipeline"), slog.String("session_id", id))
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// LoadVideo probes the file at path and binds it as the session video.
// The session takes ownership of the file: it is released on failure, on the
// next LoadVideo, on Reset and on Close.
func (s *Session) LoadVideo(ctx context.Context, path, name string) (media.Video, error) {
	video, err := s.prober.Probe(ctx, path)
	if err != nil {
		s.release(ctx, path)
		s.logger.Warn("rejected upload", slog.String("name", name), slog.String("error", err.Error()))
		return media.Video{}, fmt.Errorf("%w: %w", ErrUnreadableVideo, err)
	}
	if name != "" {
		video.Name = name
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.release(ctx, path)
		return media.Video{}, ErrSessionClosed
	}
	previous := s.videoPathLocked()
	s.epoch++
	s.stopClearTimerLocked()
	s.state = s.state.WithVideo(video)
	s.mu.Unlock()

	s.release(ctx, previous)

	s.logger.Info("video loaded",
		slog.String("name", video.Name),
		slog.Float64("duration", video.Duration),
		slog.Int("width", video.Width),
		slog.Int("height", video.Height),
	)
	return video, nil
}

// AutoTimestamps returns the AutoExtract sampling points for a video of the given
// duration: i*duration/10 for i = 1..8.
func AutoTimestamps(duration float64) []float64 {
	ts := make([]float64, AutoFrameCount)
	for i := range ts {
		ts[i] = float64(i+1) * duration / 10
	}
	return ts
}

// StartAutoExtract validates preconditions and starts capturing AutoFrameCount
// frames, one after another. The channel receives exactly one result.
func (s *Session) StartAutoExtract(ctx context.Context) (<-chan BatchResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	next, err := s.state.BeginExtract(StatusAutoExtracting)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = next
	epoch := s.epoch
	video := *s.state.Video
	s.mu.Unlock()

	out := make(chan BatchResult, 1)
	go func() {
		out <- s.runAutoExtract(context.WithoutCancel(ctx), epoch, video)
		close(out)
	}()
	return out, nil
}

// AutoExtract is the blocking form of StartAutoExtract. If ctx ends first the
// batch keeps running and ctx.Err() is returned.
func (s *Session) AutoExtract(ctx context.Context) (BatchResult, error) {
	ch, err := s.StartAutoExtract(ctx)
	if err != nil {
		return BatchResult{Err: err}, err
	}
	select {
	case res := <-ch:
		return res, res.Err
	case <-ctx.Done():
		return BatchResult{}, ctx.Err()
	}
}

func (s *Session) runAutoExtract(ctx context.Context, epoch uint64, video media.Video) BatchResult {
	timestamps := AutoTimestamps(video.Duration)
	logger := s.logger.With(slog.String("op", "auto_extract"), slog.String("policy", string(s.policy)))
	logger.Info("auto extraction started", slog.Int("slots", len(timestamps)))

	var res BatchResult
	for _, at := range timestamps {
		if !s.isCurrent(epoch) {
			return s.discard(logger, epoch)
		}

		frame, err := s.capture(ctx, video, at)
		if err == nil {
			res.Frames = append(res.Frames, frame)
			continue
		}

		var capErr *CaptureError
		if !errors.As(err, &capErr) {
			capErr = &CaptureError{Timestamp: at, Err: err}
		}
		logger.Warn("frame capture failed",
			slog.Float64("timestamp", at),
			slog.String("error", capErr.Err.Error()),
		)
		res.Failures = append(res.Failures, capErr)

		if s.policy == BatchAbort {
			res.Frames = nil
			res.Err = capErr
			break
		}
	}
	if res.Err == nil && len(res.Frames) == 0 {
		errs := make([]error, len(res.Failures))
		for i, f := range res.Failures {
			errs[i] = f
		}
		res.Err = errors.Join(errs...)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return s.discard(logger, epoch)
	}
	if res.Err != nil {
		s.state = s.state.FailExtract(res.Err, res.Failures...)
	} else {
		s.state = s.state.AppendFrames(res.Frames, StatusMomentsCaptured, res.Failures...)
	}
	s.mu.Unlock()

	logger.Info("auto extraction finished",
		slog.Int("captured", len(res.Frames)),
		slog.Int("failed", len(res.Failures)),
	)
	return res
}

// ManualExtract captures one frame at the time typed by the user ("MM:SS" or "SS").
// It blocks until the capture finishes; ctx is only used for the wait.
func (s *Session) ManualExtract(ctx context.Context, input string) (Frame, error) {
	at, err := ParseTimecode(input)
	if err != nil {
		return Frame{}, err
	}
	input = strings.TrimSpace(input)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Frame{}, ErrSessionClosed
	}
	if s.state.Video == nil {
		s.mu.Unlock()
		return Frame{}, ErrNoVideo
	}
	if duration := s.state.Video.Duration; at > duration {
		s.mu.Unlock()
		return Frame{}, fmt.Errorf("%w: %s is past the end (%s)", ErrTimeOutOfRange, FormatTime(at), FormatTime(duration))
	}
	next, err := s.state.BeginExtract(capturingStatus(input))
	if err != nil {
		s.mu.Unlock()
		return Frame{}, err
	}
	s.state = next
	epoch := s.epoch
	video := *s.state.Video
	s.mu.Unlock()

	type captured struct {
		frame Frame
		err   error
	}
	done := make(chan captured, 1)
	go func() {
		frame, err := s.capture(context.WithoutCancel(ctx), video, at)

		s.mu.Lock()
		switch {
		case s.epoch != epoch:
			err = ErrSuperseded
		case err != nil:
			var capErr *CaptureError
			if errors.As(err, &capErr) {
				s.state = s.state.FailExtract(err, capErr)
			} else {
				s.state = s.state.FailExtract(err)
			}
		default:
			s.state = s.state.AppendFrames([]Frame{frame}, StatusFrameCaptured)
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("manual capture failed", slog.String("time", input), slog.String("error", err.Error()))
		}
		done <- captured{frame: frame, err: err}
	}()

	select {
	case c := <-done:
		return c.frame, c.err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// capture runs one bounded seek-and-capture.
func (s *Session) capture(ctx context.Context, video media.Video, at float64) (Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, s.captureTimeout)
	defer cancel()

	image, err := s.sampler.ExtractFrame(ctx, video, at)
	if err != nil {
		metrics.FramesCapturedTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return Frame{}, &CaptureError{Timestamp: at, Err: err}
	}
	metrics.FramesCapturedTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return Frame{ID: s.newFrameID(), Timestamp: at, Image: image}, nil
}

// ToggleSelect flips the selection of a frame and reports the new selection.
// Unknown ids leave the state unchanged and return ErrFrameNotFound.
func (s *Session) ToggleSelect(frameID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Frame(frameID); !ok {
		return false, ErrFrameNotFound
	}
	s.state = s.state.ToggleSelect(frameID)
	return s.state.IsSelected(frameID), nil
}

// RemoveFrame deletes a frame and prunes it from the selection.
func (s *Session) RemoveFrame(frameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.state.RemoveFrame(frameID)
	if !ok {
		return ErrFrameNotFound
	}
	s.state = next
	return nil
}

// Frame returns a frame by id.
func (s *Session) Frame(frameID string) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.state.Frame(frameID)
	if !ok {
		return Frame{}, ErrFrameNotFound
	}
	return f, nil
}

// UpdateSettings normalises and validates settings before storing them.
func (s *Session) UpdateSettings(settings thumbnail.Settings) (thumbnail.Settings, error) {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return thumbnail.Settings{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return thumbnail.Settings{}, ErrSessionClosed
	}
	s.state = s.state.WithSettings(settings)
	return settings, nil
}

// StartGenerate validates preconditions and sends the selected frames with the
// current settings to the generator. The channel receives exactly one result.
func (s *Session) StartGenerate(ctx context.Context) (<-chan OpResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	next, err := s.state.BeginGenerate()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = next
	epoch := s.epoch
	images := s.state.SelectedImages()
	settings := s.state.Settings
	s.mu.Unlock()

	return s.runGeneration(ctx, epoch, "generate", func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, images, settings)
	}, State.CompleteGenerate), nil
}

// Generate is the blocking form of StartGenerate.
func (s *Session) Generate(ctx context.Context) (string, error) {
	ch, err := s.StartGenerate(ctx)
	if err != nil {
		return "", err
	}
	return wait(ctx, ch)
}

// StartRefine validates preconditions and sends the current result with the
// edit instruction to the generator. The channel receives exactly one result.
func (s *Session) StartRefine(ctx context.Context, instruction string) (<-chan OpResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	next, err := s.state.BeginRefine(instruction)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = next
	epoch := s.epoch
	prior := s.state.Result
	s.mu.Unlock()

	return s.runGeneration(ctx, epoch, "refine", func(ctx context.Context) (string, error) {
		return s.generator.Refine(ctx, prior, instruction)
	}, State.CompleteRefine), nil
}

// Refine is the blocking form of StartRefine.
func (s *Session) Refine(ctx context.Context, instruction string) (string, error) {
	ch, err := s.StartRefine(ctx, instruction)
	if err != nil {
		return "", err
	}
	return wait(ctx, ch)
}

func wait(ctx context.Context, ch <-chan OpResult) (string, error) {
	select {
	case res := <-ch:
		return res.Image, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) runGeneration(
	ctx context.Context,
	epoch uint64,
	op string,
	call func(context.Context) (string, error),
	complete func(State, string) State,
) <-chan OpResult {
	out := make(chan OpResult, 1)
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		logger := s.logger.With(slog.String("op", op))
		logger.Info("generation started")

		callCtx, cancel := context.WithTimeout(ctx, s.generateTimeout)
		start := time.Now()
		image, err := call(callCtx)
		cancel()
		elapsed := time.Since(start)
		metrics.GenerationDuration.WithLabelValues(op).Observe(elapsed.Seconds())

		if err == nil && image == "" {
			err = generator.ErrNoImage
		}
		if err != nil {
			err = &GenerationError{Op: op, Err: err}
			metrics.GenerationRequestsTotal.WithLabelValues(op, metrics.ResultFailure).Inc()
		} else {
			metrics.GenerationRequestsTotal.WithLabelValues(op, metrics.ResultSuccess).Inc()
		}

		s.mu.Lock()
		switch {
		case s.epoch != epoch:
			s.mu.Unlock()
			logger.Info("generation result discarded", slog.Duration("elapsed", elapsed))
			out <- OpResult{Err: ErrSuperseded}
			return
		case err != nil:
			s.state = s.state.FailGenerate(err)
		default:
			s.state = complete(s.state, image)
		}
		s.mu.Unlock()

		if err != nil {
			logger.Error("generation failed", slog.Duration("elapsed", elapsed), slog.String("error", err.Error()))
			out <- OpResult{Err: err}
			return
		}
		logger.Info("generation finished", slog.Duration("elapsed", elapsed))
		out <- OpResult{Image: image}
	}()

	return out
}

// Result returns the current generated thumbnail.
func (s *Session) Result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Result == "" {
		return "", ErrNoResult
	}
	return s.state.Result, nil
}

// Reset releases the video, restores the initial state and shows a confirmation
// message that clears itself after the status clear delay.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	previous := s.videoPathLocked()
	s.epoch++
	s.state = s.state.Reset()
	s.stopClearTimerLocked()
	s.clearTimer = time.AfterFunc(s.statusClearDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state = s.state.ClearStatus(StatusReset)
	})
	s.mu.Unlock()

	s.release(ctx, previous)
	s.logger.Info("session reset")
}

// Close releases the video and stops the session. In-flight work is discarded.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	previous := s.videoPathLocked()
	s.epoch++
	s.stopClearTimerLocked()
	s.state = Initial()
	s.mu.Unlock()

	s.release(ctx, previous)
	s.logger.Info("session closed")
}

func (s *Session) isCurrent(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

func (s *Session) discard(logger *slog.Logger, epoch uint64) BatchResult {
	logger.Info("extraction result discarded", slog.Uint64("epoch", epoch))
	return BatchResult{Err: ErrSuperseded}
}

func (s *Session) videoPathLocked() string {
	if s.state.Video == nil {
		return ""
	}
	return s.state.Video.Path
}

func (s *Session) stopClearTimerLocked() {
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
}

// release hands a video file back to the cleaner.
func (s *Session) release(ctx context.Context, path string) {
	if path == "" || s.cleaner == nil {
		return
	}
	if err := s.cleaner.CleanupTemp(context.WithoutCancel(ctx), []string{path}); err != nil {
		s.logger.Warn("failed to release video", slog.String("path", path), slog.String("error", err.Error()))
	}
}
