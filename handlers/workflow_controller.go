package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Perceptus-Labs/perceptus-object-detector/models"
	"go.uber.org/zap"
)

// MediaAcquirer is the device camera and photo library.
type MediaAcquirer interface {
	RequestCameraPermission(ctx context.Context) (bool, error)
	Acquire(ctx context.Context, mode models.AcquireMode, opts models.AcquireOptions) (models.AcquireResult, error)
}

type Encoder interface {
	EncodeBase64(ctx context.Context, ref string) (string, error)
}

type Inference interface {
	Infer(ctx context.Context, req models.InferenceRequest) (string, error)
}

// Notifier shows a user-visible alert.
type Notifier interface {
	Alert(alert models.Alert)
}

type NotifierFunc func(alert models.Alert)

func (f NotifierFunc) Alert(alert models.Alert) { f(alert) }

// StateListener is called after every state change with the new state.
// States are delivered one at a time in the order they were committed.
type StateListener func(state models.SessionState)

type ControllerDeps struct {
	Media     MediaAcquirer
	Encoder   Encoder
	Inference Inference
	Notifier  Notifier
	Logger    *zap.Logger
}

// WorkflowController owns the session state of one detector screen and is the
// only writer of it.
type WorkflowController struct {
	ID     string
	Logger *zap.Logger

	media     MediaAcquirer
	encoder   Encoder
	inference Inference
	notifier  Notifier

	mu          sync.Mutex
	state       models.SessionState
	inFlight    bool
	listeners   []StateListener
	pending     []models.SessionState
	dispatching bool
}

func NewWorkflowController(id string, deps ControllerDeps) *WorkflowController {
	logger := deps.Logger
	if logger == nil {
		logger = zap.L()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(models.Alert) {})
	}
	return &WorkflowController{
		ID:        id,
		Logger:    logger.With(zap.String("session_id", id)),
		media:     deps.Media,
		encoder:   deps.Encoder,
		inference: deps.Inference,
		notifier:  notifier,
	}
}

func (c *WorkflowController) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanAnalyze reports whether Analyze would start a request now. It is false
// while an earlier request still holds the single-flight guard, even after a
// reset and a new selection.
func (c *WorkflowController) CanAnalyze() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CanAnalyze() && !c.inFlight
}

func (c *WorkflowController) Subscribe(listener StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *WorkflowController) AcquireFromGallery(ctx context.Context) {
	result, err := c.media.Acquire(ctx, models.AcquireModeGallery, models.DefaultAcquireOptions)
	if err != nil {
		c.Logger.Error("Gallery selection failed", zap.Error(err))
		c.notifier.Alert(models.Alert{Title: models.AlertErrorTitle, Message: models.AlertGalleryFailedMessage})
		return
	}
	if !c.acceptAcquisition(result) {
		c.notifier.Alert(models.Alert{Title: models.AlertErrorTitle, Message: models.AlertGalleryFailedMessage})
	}
}

func (c *WorkflowController) AcquireFromCamera(ctx context.Context) {
	granted, err := c.media.RequestCameraPermission(ctx)
	if err != nil {
		c.Logger.Error("Camera permission request failed", zap.Error(err))
		c.notifier.Alert(models.Alert{Title: models.AlertErrorTitle, Message: models.AlertCameraFailedMessage})
		return
	}
	if !granted {
		c.Logger.Info("Camera permission denied")
		c.notifier.Alert(models.Alert{Title: models.AlertPermissionTitle, Message: models.AlertCameraPermission})
		return
	}

	result, err := c.media.Acquire(ctx, models.AcquireModeCamera, models.DefaultAcquireOptions)
	if err != nil {
		c.Logger.Error("Camera capture failed", zap.Error(err))
		c.notifier.Alert(models.Alert{Title: models.AlertErrorTitle, Message: models.AlertCameraFailedMessage})
		return
	}
	if !c.acceptAcquisition(result) {
		c.notifier.Alert(models.Alert{Title: models.AlertErrorTitle, Message: models.AlertCameraFailedMessage})
	}
}

// acceptAcquisition applies a picker result. It returns false only for a
// result that is neither canceled nor carries an image.
func (c *WorkflowController) acceptAcquisition(result models.AcquireResult) bool {
	if result.Canceled {
		c.Logger.Debug("Acquisition canceled")
		return true
	}
	if err := c.apply(models.ImageAcquired{URI: result.URI}); err != nil {
		c.Logger.Error("Acquisition returned no image", zap.Error(err))
		return false
	}
	c.Logger.Info("Image selected", zap.String("image", result.URI))
	return true
}

// Analyze identifies the object in the selected image. It is a no-op without
// an image and returns models.ErrAnalysisInProgress while another analysis is
// outstanding. Failures never escape: they become the failure message in the
// state. Once started the analysis runs to completion even if ctx is canceled.
func (c *WorkflowController) Analyze(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		c.Logger.Warn("Analyze requested while another analysis is running")
		return models.ErrAnalysisInProgress
	}
	next, err := models.Apply(c.state, models.AnalysisStarted{})
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, models.ErrNoImageSelected) {
			return nil
		}
		return err
	}
	c.inFlight = true
	c.commit(next)
	image := next.SelectedImage
	c.mu.Unlock()
	c.deliver()

	text := c.runAnalysis(context.WithoutCancel(ctx), image)

	c.mu.Lock()
	final, _ := models.Apply(c.state, models.AnalysisFinished{Image: image, Text: text})
	c.inFlight = false
	c.commit(final)
	c.mu.Unlock()
	c.deliver()

	if final.SelectedImage != image {
		c.Logger.Info("Discarded analysis result for replaced image", zap.String("image", image))
	}
	return nil
}

func (c *WorkflowController) runAnalysis(ctx context.Context, image string) string {
	logger := c.Logger.With(zap.String("image", image))
	logger.Info("Analyzing image")

	payload, err := c.encoder.EncodeBase64(ctx, image)
	if err != nil {
		logger.Error("Analysis error: encode image", zap.Error(err))
		return models.ResultFailedMessage
	}

	text, err := c.inference.Infer(ctx, models.InferenceRequest{
		Instruction: models.IdentifyInstruction,
		ImageBase64: payload,
		MimeType:    "image/jpeg",
	})
	if err != nil {
		logger.Error("Analysis error: inference", zap.Error(err))
		return models.ResultFailedMessage
	}

	if strings.TrimSpace(text) == "" {
		logger.Warn("Inference returned no text")
		return models.ResultEmptyMessage
	}
	logger.Info("Analysis complete", zap.Int("length", len(text)))
	return text
}

// Reset restores the empty state. An analysis still in flight keeps the
// single-flight guard until it resolves; its result is discarded.
func (c *WorkflowController) Reset() {
	if err := c.apply(models.ResetRequested{}); err != nil {
		c.Logger.Error("Reset failed", zap.Error(err))
		return
	}
	c.Logger.Debug("Session reset")
}

func (c *WorkflowController) apply(ev models.Event) error {
	c.mu.Lock()
	next, err := models.Apply(c.state, ev)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.commit(next)
	c.mu.Unlock()
	c.deliver()
	return nil
}

// commit stores the new state and queues it for listeners. c.mu must be held.
func (c *WorkflowController) commit(next models.SessionState) {
	c.state = next
	c.pending = append(c.pending, next)
}

// deliver drains queued states to listeners outside the lock. Only one caller
// drains at a time; others return at once and leave their states to it, so a
// listener never sees an older state after a newer one.
func (c *WorkflowController) deliver() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		listeners := c.listeners
		c.mu.Unlock()
		for _, state := range batch {
			for _, listener := range listeners {
				listener(state)
			}
		}
		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}
