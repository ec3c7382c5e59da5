package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Perceptus-Labs/perceptus-object-detector/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMedia struct {
	granted     bool
	permErr     error
	results     []models.AcquireResult
	err         error
	modes       []models.AcquireMode
	lastOptions models.AcquireOptions
}

func (f *fakeMedia) RequestCameraPermission(context.Context) (bool, error) {
	return f.granted, f.permErr
}

func (f *fakeMedia) Acquire(_ context.Context, mode models.AcquireMode, opts models.AcquireOptions) (models.AcquireResult, error) {
	f.modes = append(f.modes, mode)
	f.lastOptions = opts
	if f.err != nil {
		return models.AcquireResult{}, f.err
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result, nil
}

type fakeEncoder struct {
	err  error
	refs []string
}

func (f *fakeEncoder) EncodeBase64(_ context.Context, ref string) (string, error) {
	f.refs = append(f.refs, ref)
	if f.err != nil {
		return "", f.err
	}
	return "aW1n", nil
}

type fakeInference struct {
	text    string
	err     error
	onInfer func()
	reqs    []models.InferenceRequest
}

func (f *fakeInference) Infer(_ context.Context, req models.InferenceRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	if f.onInfer != nil {
		f.onInfer()
	}
	return f.text, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (r *recordingNotifier) Alert(alert models.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
}

type harness struct {
	media     *fakeMedia
	encoder   *fakeEncoder
	inference *fakeInference
	notifier  *recordingNotifier
	ctrl      *WorkflowController
}

func newHarness() *harness {
	h := &harness{
		media:     &fakeMedia{granted: true},
		encoder:   &fakeEncoder{},
		inference: &fakeInference{},
		notifier:  &recordingNotifier{},
	}
	h.ctrl = NewWorkflowController("test", ControllerDeps{
		Media:     h.media,
		Encoder:   h.encoder,
		Inference: h.inference,
		Notifier:  h.notifier,
		Logger:    zap.NewNop(),
	})
	return h
}

func (h *harness) selectFromGallery(t *testing.T, uri string) {
	t.Helper()
	h.media.results = append(h.media.results, models.AcquireResult{URI: uri})
	h.ctrl.AcquireFromGallery(context.Background())
}

func TestScenarioGalleryCancel(t *testing.T) {
	h := newHarness()
	h.media.results = []models.AcquireResult{{Canceled: true}}

	h.ctrl.AcquireFromGallery(context.Background())

	assert.Equal(t, models.SessionState{}, h.ctrl.State())
	assert.Empty(t, h.notifier.alerts)
	assert.Equal(t, models.DefaultAcquireOptions, h.media.lastOptions)
}

func TestScenarioGallerySelect(t *testing.T) {
	h := newHarness()

	h.selectFromGallery(t, "img1")

	assert.Equal(t, models.SessionState{SelectedImage: "img1"}, h.ctrl.State())
	assert.Equal(t, []models.AcquireMode{models.AcquireModeGallery}, h.media.modes)
}

func TestScenarioAnalyzeSuccess(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ: 小型の家庭用ペット"

	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.Equal(t, models.SessionState{SelectedImage: "img1", AnalysisResult: "ネコ: 小型の家庭用ペット"}, h.ctrl.State())
	require.Len(t, h.inference.reqs, 1)
	assert.Equal(t, models.IdentifyInstruction, h.inference.reqs[0].Instruction)
	assert.Equal(t, "aW1n", h.inference.reqs[0].ImageBase64)
	assert.Equal(t, "image/jpeg", h.inference.reqs[0].MimeType)
	assert.Equal(t, []string{"img1"}, h.encoder.refs)
}

func TestScenarioAnalyzeNetworkFailure(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.err = errors.New("dial tcp: connection refused")

	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.Equal(t, models.SessionState{
		SelectedImage:  "img1",
		AnalysisResult: "解析に失敗しました。ネットワーク接続やAPIキーを確認してください。",
	}, h.ctrl.State())
}

func TestScenarioCameraPermissionDenied(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ: 小型の家庭用ペット"
	require.NoError(t, h.ctrl.Analyze(context.Background()))
	before := h.ctrl.State()
	h.media.granted = false

	h.ctrl.AcquireFromCamera(context.Background())

	assert.Equal(t, before, h.ctrl.State())
	assert.Equal(t, []models.AcquireMode{models.AcquireModeGallery}, h.media.modes, "capture must not run")
	require.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, models.Alert{Title: "権限エラー", Message: models.AlertCameraPermission}, h.notifier.alerts[0])
}

func TestScenarioCameraReplacesResult(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ: 小型の家庭用ペット"
	require.NoError(t, h.ctrl.Analyze(context.Background()))
	h.media.results = []models.AcquireResult{{URI: "img2"}}

	h.ctrl.AcquireFromCamera(context.Background())

	assert.Equal(t, models.SessionState{SelectedImage: "img2"}, h.ctrl.State())
	assert.Empty(t, h.notifier.alerts)
}

func TestAcquisitionFailuresAlert(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		acquire func(h *harness)
		want    models.Alert
	}{
		{
			name:    "gallery error",
			setup:   func(h *harness) { h.media.err = errors.New("permission denied") },
			acquire: func(h *harness) { h.ctrl.AcquireFromGallery(context.Background()) },
			want:    models.Alert{Title: "エラー", Message: "ギャラリーからの画像選択に失敗しました。"},
		},
		{
			name:    "camera capture error",
			setup:   func(h *harness) { h.media.err = errors.New("ffmpeg exited") },
			acquire: func(h *harness) { h.ctrl.AcquireFromCamera(context.Background()) },
			want:    models.Alert{Title: "エラー", Message: "写真の撮影に失敗しました。"},
		},
		{
			name:    "camera permission request error",
			setup:   func(h *harness) { h.media.permErr = errors.New("no such device") },
			acquire: func(h *harness) { h.ctrl.AcquireFromCamera(context.Background()) },
			want:    models.Alert{Title: "エラー", Message: "写真の撮影に失敗しました。"},
		},
		{
			name:    "gallery result without image",
			setup:   func(h *harness) { h.media.results = []models.AcquireResult{{}} },
			acquire: func(h *harness) { h.ctrl.AcquireFromGallery(context.Background()) },
			want:    models.Alert{Title: "エラー", Message: "ギャラリーからの画像選択に失敗しました。"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)
			tt.acquire(h)
			assert.Equal(t, models.SessionState{}, h.ctrl.State())
			assert.Equal(t, []models.Alert{tt.want}, h.notifier.alerts)
		})
	}
}

func TestCameraCancelIsSilent(t *testing.T) {
	h := newHarness()
	h.media.results = []models.AcquireResult{{Canceled: true}}

	h.ctrl.AcquireFromCamera(context.Background())

	assert.Equal(t, models.SessionState{}, h.ctrl.State())
	assert.Empty(t, h.notifier.alerts)
}

func TestAnalyzeWithoutImageIsNoop(t *testing.T) {
	h := newHarness()
	var calls int
	h.ctrl.Subscribe(func(models.SessionState) { calls++ })

	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.Equal(t, models.SessionState{}, h.ctrl.State())
	assert.Zero(t, calls)
	assert.Empty(t, h.encoder.refs)
}

func TestAnalyzeEmptyResponseUsesFallback(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "  "

	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.Equal(t, "解析結果を取得できませんでした。", h.ctrl.State().AnalysisResult)
}

func TestAnalyzeEncodeFailure(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.encoder.err = errors.New("no such file")

	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.Equal(t, models.ResultFailedMessage, h.ctrl.State().AnalysisResult)
	assert.False(t, h.ctrl.State().IsAnalyzing)
	assert.Empty(t, h.inference.reqs)
}

func TestAnalyzeFlagsWhileRunning(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ"

	var during models.SessionState
	h.inference.onInfer = func() { during = h.ctrl.State() }
	var seen []models.SessionState
	h.ctrl.Subscribe(func(s models.SessionState) { seen = append(seen, s) })

	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.True(t, during.IsAnalyzing)
	assert.Equal(t, []models.SessionState{
		{SelectedImage: "img1", IsAnalyzing: true},
		{SelectedImage: "img1", AnalysisResult: "ネコ"},
	}, seen)
}

func TestAnalyzeRejectsReentrantCall(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ"

	started := make(chan struct{})
	release := make(chan struct{})
	h.inference.onInfer = func() {
		close(started)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Analyze(context.Background()) }()
	<-started

	assert.ErrorIs(t, h.ctrl.Analyze(context.Background()), models.ErrAnalysisInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, h.inference.reqs, 1)
	assert.Equal(t, "ネコ", h.ctrl.State().AnalysisResult)
}

func TestAnalyzeRunsToCompletionAfterCancel(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ"
	ctx, cancel := context.WithCancel(context.Background())
	h.inference.onInfer = cancel

	require.NoError(t, h.ctrl.Analyze(ctx))

	assert.Equal(t, "ネコ", h.ctrl.State().AnalysisResult)
}

func TestResultDiscardedWhenImageReplacedMidAnalysis(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ"
	h.inference.onInfer = func() { h.selectFromGallery(t, "img2") }

	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.Equal(t, models.SessionState{SelectedImage: "img2"}, h.ctrl.State())
}

func TestResetDuringAnalysisKeepsGuard(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ"

	h.inference.onInfer = func() {
		h.ctrl.Reset()
		assert.Equal(t, models.SessionState{}, h.ctrl.State())
		h.selectFromGallery(t, "img2")
		assert.ErrorIs(t, h.ctrl.Analyze(context.Background()), models.ErrAnalysisInProgress)
	}

	require.NoError(t, h.ctrl.Analyze(context.Background()))
	assert.Equal(t, models.SessionState{SelectedImage: "img2"}, h.ctrl.State())
}

func TestResetFromEveryState(t *testing.T) {
	h := newHarness()
	h.ctrl.Reset()
	assert.Equal(t, models.SessionState{}, h.ctrl.State())

	h.selectFromGallery(t, "img1")
	h.ctrl.Reset()
	assert.Equal(t, models.SessionState{}, h.ctrl.State())

	h.selectFromGallery(t, "img1")
	h.inference.text = "ネコ"
	require.NoError(t, h.ctrl.Analyze(context.Background()))
	h.ctrl.Reset()
	h.ctrl.Reset()
	assert.Equal(t, models.SessionState{}, h.ctrl.State())
}

func TestAcquisitionAlwaysClearsResult(t *testing.T) {
	h := newHarness()
	h.inference.text = "ネコ"
	for _, uri := range []string{"a", "b", "c"} {
		h.selectFromGallery(t, uri)
		assert.Empty(t, h.ctrl.State().AnalysisResult)
		require.NoError(t, h.ctrl.Analyze(context.Background()))
		assert.Equal(t, "ネコ", h.ctrl.State().AnalysisResult)
	}
}

func TestListenersSeeStatesInCommitOrder(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.media.results = append(h.media.results, models.AcquireResult{URI: "img2"})
	h.inference.text = "ネコ"

	var mu sync.Mutex
	var delivered []models.SessionState
	entered := make(chan struct{})
	release := make(chan struct{})
	h.ctrl.Subscribe(func(s models.SessionState) {
		mu.Lock()
		delivered = append(delivered, s)
		mu.Unlock()
		if s == (models.SessionState{SelectedImage: "img2", IsAnalyzing: true}) {
			close(entered)
			<-release
		}
	})

	picked := make(chan struct{})
	h.inference.onInfer = func() {
		go func() {
			defer close(picked)
			h.ctrl.AcquireFromGallery(context.Background())
		}()
		<-entered
	}

	require.NoError(t, h.ctrl.Analyze(context.Background()))
	close(release)
	<-picked

	final := models.SessionState{SelectedImage: "img2"}
	assert.Equal(t, final, h.ctrl.State())
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, delivered)
	assert.Equal(t, final, delivered[len(delivered)-1])
}

func TestCanAnalyzeFollowsGuard(t *testing.T) {
	h := newHarness()
	assert.False(t, h.ctrl.CanAnalyze())

	h.selectFromGallery(t, "img1")
	assert.True(t, h.ctrl.CanAnalyze())

	h.inference.text = "ネコ"
	h.inference.onInfer = func() {
		h.ctrl.Reset()
		h.selectFromGallery(t, "img2")
		assert.True(t, h.ctrl.State().CanAnalyze())
		assert.False(t, h.ctrl.CanAnalyze())
	}
	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.True(t, h.ctrl.CanAnalyze())
}

func TestAnalyzeWhitespaceResponseUsesFallback(t *testing.T) {
	h := newHarness()
	h.selectFromGallery(t, "img1")
	h.inference.text = " \n\t"

	require.NoError(t, h.ctrl.Analyze(context.Background()))

	assert.Equal(t, models.ResultEmptyMessage, h.ctrl.State().AnalysisResult)
}
