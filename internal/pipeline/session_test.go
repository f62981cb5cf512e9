package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maauso/thumbnail-studio/internal/generator"
	"github.com/maauso/thumbnail-studio/internal/media"
	"github.com/maauso/thumbnail-studio/internal/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	video media.Video
	err   error
}

func (p *fakeProber) Probe(_ context.Context, path string) (media.Video, error) {
	if p.err != nil {
		return media.Video{}, p.err
	}
	v := p.video
	v.Path = path
	return v, nil
}

// fakeSampler records calls and tracks how many captures overlap.
type fakeSampler struct {
	mu          sync.Mutex
	calls       []float64
	fail        map[float64]bool
	inFlight    int
	maxInFlight int
	block       chan struct{}
	waitForCtx  bool
}

func (s *fakeSampler) ExtractFrame(ctx context.Context, _ media.Video, at float64) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, at)
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	block := s.block
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if block != nil {
		<-block
	}
	if s.waitForCtx {
		<-ctx.Done()
		return "", ctx.Err()
	}
	time.Sleep(time.Millisecond)

	if s.fail[at] {
		return "", fmt.Errorf("%w: corrupt packet", media.ErrFrameCapture)
	}
	return fmt.Sprintf("data:image/png;base64,%g", at), nil
}

func (s *fakeSampler) Calls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.calls...)
}

type fakeCleaner struct {
	mu       sync.Mutex
	released []string
}

func (c *fakeCleaner) CleanupTemp(_ context.Context, paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, paths...)
	return nil
}

func (c *fakeCleaner) Released() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.released...)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, images []string, settings thumbnail.Settings) (string, error) {
	args := m.Called(ctx, images, settings)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) Refine(ctx context.Context, image, instruction string) (string, error) {
	args := m.Called(ctx, image, instruction)
	return args.String(0), args.Error(1)
}

type harness struct {
	session *Session
	prober  *fakeProber
	sampler *fakeSampler
	gen     *mockGenerator
	cleaner *fakeCleaner
}

func newHarness(t *testing.T, duration float64, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		prober:  &fakeProber{video: media.Video{Duration: duration, Width: 64, Height: 36, Codec: "h264"}},
		sampler: &fakeSampler{fail: map[float64]bool{}},
		gen:     &mockGenerator{},
		cleaner: &fakeCleaner{},
	}
	n := 0
	opts = append([]Option{
		WithCleaner(h.cleaner),
		WithFrameIDGenerator(func() string { n++; return fmt.Sprintf("frame-%d", n) }),
	}, opts...)
	h.session = NewSession("ses-test", h.prober, h.sampler, h.gen, opts...)
	return h
}

func (h *harness) load(t *testing.T, path string) media.Video {
	t.Helper()
	v, err := h.session.LoadVideo(context.Background(), path, "clip.mp4")
	require.NoError(t, err)
	return v
}

func timestamps(fs []Frame) []float64 {
	out := make([]float64, len(fs))
	for i, f := range fs {
		out[i] = f.Timestamp
	}
	return out
}

func TestAutoTimestamps(t *testing.T) {
	assert.Equal(t, []float64{10, 20, 30, 40, 50, 60, 70, 80}, AutoTimestamps(100))
	assert.Len(t, AutoTimestamps(3), AutoFrameCount)
}

func TestLoadVideo(t *testing.T) {
	h := newHarness(t, 100)

	v := h.load(t, "/tmp/a.mp4")
	assert.Equal(t, "clip.mp4", v.Name)
	assert.Equal(t, 100.0, v.Duration)

	s := h.session.Snapshot()
	require.NotNil(t, s.Video)
	assert.Equal(t, "/tmp/a.mp4", s.Video.Path)
	assert.Equal(t, StatusVideoLoaded, s.Status)
	assert.Empty(t, h.cleaner.Released())

	h.load(t, "/tmp/b.mp4")
	assert.Equal(t, []string{"/tmp/a.mp4"}, h.cleaner.Released())
}

func TestLoadVideo_Unreadable(t *testing.T) {
	h := newHarness(t, 100)
	h.prober.err = media.ErrNoVideoStream

	_, err := h.session.LoadVideo(context.Background(), "/tmp/notes.txt", "notes.txt")
	assert.ErrorIs(t, err, ErrUnreadableVideo)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, media.ErrNoVideoStream)
	assert.Equal(t, []string{"/tmp/notes.txt"}, h.cleaner.Released())
	assert.Nil(t, h.session.Snapshot().Video)
}

func TestAutoExtract_HundredSecondVideo(t *testing.T) {
	h := newHarness(t, 100)
	h.load(t, "/tmp/a.mp4")

	res, err := h.session.AutoExtract(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Failures)

	want := []float64{10, 20, 30, 40, 50, 60, 70, 80}
	assert.Equal(t, want, timestamps(res.Frames))
	assert.Equal(t, want, h.sampler.Calls())
	assert.Equal(t, 1, h.sampler.maxInFlight, "captures must run one at a time")

	s := h.session.Snapshot()
	assert.Equal(t, want, timestamps(s.Frames))
	assert.False(t, s.IsExtracting)
	assert.Equal(t, StatusMomentsCaptured, s.Status)
}

func TestAutoExtract_NoVideo(t *testing.T) {
	h := newHarness(t, 100)

	_, err := h.session.AutoExtract(context.Background())
	assert.ErrorIs(t, err, ErrNoVideo)
	assert.Empty(t, h.sampler.Calls())
}

func TestAutoExtract_SkipPolicy(t *testing.T) {
	h := newHarness(t, 100, WithBatchPolicy(BatchSkip))
	h.sampler.fail[30] = true
	h.sampler.fail[60] = true
	h.load(t, "/tmp/a.mp4")

	res, err := h.session.AutoExtract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 40, 50, 70, 80}, timestamps(res.Frames))
	require.Len(t, res.Failures, 2)
	assert.Equal(t, 30.0, res.Failures[0].Timestamp)
	assert.Equal(t, 60.0, res.Failures[1].Timestamp)
	assert.ErrorIs(t, res.Failures[0], ErrFrameCapture)
	assert.ErrorIs(t, res.Failures[0], media.ErrFrameCapture)
	assert.Len(t, h.sampler.Calls(), 8)

	s := h.session.Snapshot()
	assert.Len(t, s.Frames, 6)
	assert.False(t, s.IsExtracting)
	assert.Equal(t, res.Failures, s.LastFailures, "skipped slots stay visible after the batch")
	assert.Empty(t, s.LastError)
}

func TestAutoExtract_SkipPolicyAllFail(t *testing.T) {
	h := newHarness(t, 100, WithBatchPolicy(BatchSkip))
	for _, ts := range AutoTimestamps(100) {
		h.sampler.fail[ts] = true
	}
	h.load(t, "/tmp/a.mp4")

	res, err := h.session.AutoExtract(context.Background())
	assert.ErrorIs(t, err, ErrFrameCapture)
	assert.Len(t, res.Failures, 8)
	assert.Empty(t, res.Frames)

	s := h.session.Snapshot()
	assert.Empty(t, s.Frames)
	assert.False(t, s.IsExtracting)
	assert.Equal(t, StatusError, s.Status)
	assert.Len(t, s.LastFailures, 8)
	assert.NotEmpty(t, s.LastError)
}

func TestAutoExtract_AbortPolicy(t *testing.T) {
	h := newHarness(t, 100, WithBatchPolicy(BatchAbort))
	h.sampler.fail[30] = true
	h.load(t, "/tmp/a.mp4")

	res, err := h.session.AutoExtract(context.Background())
	assert.ErrorIs(t, err, ErrFrameCapture)

	var capErr *CaptureError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 30.0, capErr.Timestamp)

	assert.Empty(t, res.Frames)
	assert.Equal(t, []float64{10, 20, 30}, h.sampler.Calls(), "batch stops at the first failure")

	s := h.session.Snapshot()
	assert.Empty(t, s.Frames)
	assert.False(t, s.IsExtracting)
}

func TestExtraction_NotReentrant(t *testing.T) {
	h := newHarness(t, 100)
	h.sampler.block = make(chan struct{})
	h.load(t, "/tmp/a.mp4")

	ch, err := h.session.StartAutoExtract(context.Background())
	require.NoError(t, err)
	assert.True(t, h.session.Snapshot().IsExtracting)

	_, err = h.session.StartAutoExtract(context.Background())
	assert.ErrorIs(t, err, ErrExtractionInProgress)
	_, err = h.session.ManualExtract(context.Background(), "5")
	assert.ErrorIs(t, err, ErrExtractionInProgress)

	close(h.sampler.block)
	res := <-ch
	require.NoError(t, res.Err)
	assert.Len(t, res.Frames, 8)
	assert.Len(t, h.sampler.Calls(), 8)
}

func TestManualExtract_Scenario(t *testing.T) {
	h := newHarness(t, 120)
	h.load(t, "/tmp/a.mp4")

	f, err := h.session.ManualExtract(context.Background(), "01:30")
	require.NoError(t, err)
	assert.Equal(t, 90.0, f.Timestamp)
	assert.Equal(t, "data:image/png;base64,90", f.Image)

	s := h.session.Snapshot()
	require.Len(t, s.Frames, 1)
	assert.Equal(t, StatusFrameCaptured, s.Status)

	_, err = h.session.ManualExtract(context.Background(), "02:30")
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrTimeOutOfRange)

	after := h.session.Snapshot()
	assert.Equal(t, s.Frames, after.Frames)
	assert.Equal(t, []float64{90}, h.sampler.Calls(), "rejected input performs no capture")

	_, err = h.session.ManualExtract(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrInvalidTimecode)

	f, err = h.session.ManualExtract(context.Background(), "120")
	require.NoError(t, err)
	assert.Equal(t, 120.0, f.Timestamp)
}

func TestManualExtract_NoVideo(t *testing.T) {
	h := newHarness(t, 100)

	_, err := h.session.ManualExtract(context.Background(), "10")
	assert.ErrorIs(t, err, ErrNoVideo)
}

func TestManualExtract_CaptureTimeout(t *testing.T) {
	h := newHarness(t, 100, WithCaptureTimeout(20*time.Millisecond))
	h.sampler.waitForCtx = true
	h.load(t, "/tmp/a.mp4")

	_, err := h.session.ManualExtract(context.Background(), "10")
	assert.ErrorIs(t, err, ErrFrameCapture)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s := h.session.Snapshot()
	assert.False(t, s.IsExtracting)
	assert.Empty(t, s.Frames)
}

func TestToggleAndRemove(t *testing.T) {
	h := newHarness(t, 100)
	h.load(t, "/tmp/a.mp4")
	_, err := h.session.AutoExtract(context.Background())
	require.NoError(t, err)

	selected, err := h.session.ToggleSelect("frame-2")
	require.NoError(t, err)
	assert.True(t, selected)

	selected, err = h.session.ToggleSelect("frame-2")
	require.NoError(t, err)
	assert.False(t, selected)

	_, err = h.session.ToggleSelect("nope")
	assert.ErrorIs(t, err, ErrFrameNotFound)

	_, err = h.session.ToggleSelect("frame-3")
	require.NoError(t, err)
	require.NoError(t, h.session.RemoveFrame("frame-3"))
	assert.Empty(t, h.session.Snapshot().Selected)
	assert.ErrorIs(t, h.session.RemoveFrame("frame-3"), ErrFrameNotFound)
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t, 100)

	got, err := h.session.UpdateSettings(thumbnail.Settings{
		CharacterCount: 3,
		Style:          thumbnail.StyleVlog,
		MainText:       "day one",
		SubText:        "vlog",
		TextPosition:   thumbnail.PositionCenter,
	})
	require.NoError(t, err)
	assert.Equal(t, "DAY ONE", got.MainText)
	assert.Equal(t, got, h.session.Snapshot().Settings)

	_, err = h.session.UpdateSettings(thumbnail.Settings{CharacterCount: 0, Style: thumbnail.StyleVlog, TextPosition: thumbnail.PositionCenter})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, thumbnail.ErrInvalidCharacterCount)
	assert.Equal(t, got, h.session.Snapshot().Settings)
}

// selectFrames loads a video, auto-extracts and selects the given frame ids.
func selectFrames(t *testing.T, h *harness, ids ...string) {
	t.Helper()
	h.load(t, "/tmp/a.mp4")
	_, err := h.session.AutoExtract(context.Background())
	require.NoError(t, err)
	for _, id := range ids {
		_, err := h.session.ToggleSelect(id)
		require.NoError(t, err)
	}
}

func TestGenerateRefine_Scenario(t *testing.T) {
	h := newHarness(t, 100)
	selectFrames(t, h, "frame-4", "frame-1")

	h.gen.On("Generate", mock.Anything,
		[]string{"data:image/png;base64,10", "data:image/png;base64,40"},
		thumbnail.Defaults(),
	).Return("data:image/png;base64,R1", nil).Once()
	h.gen.On("Refine", mock.Anything, "data:image/png;base64,R1", "make text yellow").
		Return("data:image/png;base64,R2", nil).Once()

	img, err := h.session.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,R1", img)
	s := h.session.Snapshot()
	assert.Equal(t, StatusMasterpieceReady, s.Status)
	assert.False(t, s.IsGenerating)

	img, err = h.session.Refine(context.Background(), "make text yellow")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,R2", img)
	s = h.session.Snapshot()
	assert.Equal(t, "data:image/png;base64,R2", s.Result)
	assert.Empty(t, s.EditInstruction)

	_, err = h.session.Refine(context.Background(), "")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, "data:image/png;base64,R2", h.session.Snapshot().Result)

	h.gen.AssertExpectations(t)
}

func TestGenerate_NothingSelected(t *testing.T) {
	h := newHarness(t, 100)
	selectFrames(t, h)

	_, err := h.session.Generate(context.Background())
	assert.ErrorIs(t, err, ErrNothingSelected)
	h.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefine_WithoutResult(t *testing.T) {
	h := newHarness(t, 100)

	_, err := h.session.Refine(context.Background(), "brighter")
	assert.ErrorIs(t, err, ErrNoResult)
	h.gen.AssertNotCalled(t, "Refine", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerate_FailureKeepsPriorResult(t *testing.T) {
	h := newHarness(t, 100)
	selectFrames(t, h, "frame-1")

	h.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("data:image/png;base64,R1", nil).Once()
	h.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("quota exceeded")).Once()

	_, err := h.session.Generate(context.Background())
	require.NoError(t, err)

	_, err = h.session.Generate(context.Background())
	assert.ErrorIs(t, err, ErrGeneration)
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "generate", genErr.Op)

	s := h.session.Snapshot()
	assert.Equal(t, "data:image/png;base64,R1", s.Result)
	assert.False(t, s.IsGenerating)
	assert.Equal(t, StatusError, s.Status)
	assert.Contains(t, s.LastError, "quota exceeded")
}

func TestGenerate_EmptyImageIsFailure(t *testing.T) {
	h := newHarness(t, 100)
	selectFrames(t, h, "frame-1")
	h.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", nil).Once()

	_, err := h.session.Generate(context.Background())
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, generator.ErrNoImage)
	assert.False(t, h.session.Snapshot().IsGenerating)
}

func TestGenerate_NotReentrant(t *testing.T) {
	h := newHarness(t, 100)
	selectFrames(t, h, "frame-1")

	release := make(chan struct{})
	h.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return("data:image/png;base64,R1", nil).Once()

	ch, err := h.session.StartGenerate(context.Background())
	require.NoError(t, err)
	assert.True(t, h.session.Snapshot().IsGenerating)

	_, err = h.session.StartGenerate(context.Background())
	assert.ErrorIs(t, err, ErrGenerationInProgress)

	close(release)
	res := <-ch
	require.NoError(t, res.Err)
	h.gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestGenerate_TimeoutReachesGenerator(t *testing.T) {
	h := newHarness(t, 100, WithGenerateTimeout(20*time.Millisecond))
	selectFrames(t, h, "frame-1")

	h.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("", context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).Once()

	_, err := h.session.Generate(context.Background())
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReset(t *testing.T) {
	h := newHarness(t, 100, WithStatusClearDelay(20*time.Millisecond))
	selectFrames(t, h, "frame-1", "frame-2")
	_, err := h.session.UpdateSettings(thumbnail.Settings{CharacterCount: 1, Style: thumbnail.StyleAnime, TextPosition: thumbnail.PositionCenter})
	require.NoError(t, err)

	h.session.Reset(context.Background())

	s := h.session.Snapshot()
	assert.Equal(t, StatusReset, s.Status)
	assert.Nil(t, s.Video)
	assert.Equal(t, []string{"/tmp/a.mp4"}, h.cleaner.Released())

	assert.Eventually(t, func() bool {
		return h.session.Snapshot().Status == ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, Initial(), h.session.Snapshot())

	// A second reset has no video to release.
	h.session.Reset(context.Background())
	assert.Len(t, h.cleaner.Released(), 1)
}

func TestReset_StatusClearDoesNotEraseNewerStatus(t *testing.T) {
	h := newHarness(t, 100, WithStatusClearDelay(20*time.Millisecond))
	h.session.Reset(context.Background())
	h.load(t, "/tmp/a.mp4")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StatusVideoLoaded, h.session.Snapshot().Status)
}

func TestReset_DiscardsInFlightGeneration(t *testing.T) {
	h := newHarness(t, 100)
	selectFrames(t, h, "frame-1")

	release := make(chan struct{})
	h.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return("data:image/png;base64,LATE", nil).Once()

	ch, err := h.session.StartGenerate(context.Background())
	require.NoError(t, err)

	h.session.Reset(context.Background())
	close(release)

	res := <-ch
	assert.ErrorIs(t, res.Err, ErrSuperseded)
	s := h.session.Snapshot()
	assert.Empty(t, s.Result)
	assert.False(t, s.IsGenerating)
}

func TestLoadVideo_DiscardsInFlightExtraction(t *testing.T) {
	h := newHarness(t, 100)
	h.sampler.block = make(chan struct{})
	h.load(t, "/tmp/a.mp4")

	ch, err := h.session.StartAutoExtract(context.Background())
	require.NoError(t, err)

	h.load(t, "/tmp/b.mp4")
	close(h.sampler.block)

	res := <-ch
	assert.ErrorIs(t, res.Err, ErrSuperseded)
	s := h.session.Snapshot()
	assert.Empty(t, s.Frames)
	assert.Equal(t, "/tmp/b.mp4", s.Video.Path)
	assert.Less(t, len(h.sampler.Calls()), 8)
}

func TestClose(t *testing.T) {
	h := newHarness(t, 100)
	h.load(t, "/tmp/a.mp4")

	h.session.Close(context.Background())
	h.session.Close(context.Background())
	assert.Equal(t, []string{"/tmp/a.mp4"}, h.cleaner.Released())

	_, err := h.session.AutoExtract(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = h.session.LoadVideo(context.Background(), "/tmp/c.mp4", "")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Contains(t, h.cleaner.Released(), "/tmp/c.mp4")
}

func TestNewSession_LoggerAttributesAddedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil)).With(slog.String("service", "studio"))

	s := NewSession("ses-1", nil, nil, nil, WithLogger(logger))
	s.Close(context.Background())

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"session_id":"ses-1"`))
	assert.Equal(t, 1, strings.Count(line, `"component":"pipeline"`))
	assert.Contains(t, line, `"service":"studio"`)
}
