package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Perceptus-Labs/perceptus-object-detector/models"
	"github.com/Perceptus-Labs/perceptus-object-detector/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow connections from any origin
	},
}

type WebSocketMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type pickImageData struct {
	Name string `json:"name"`
}

// screenState is the state message body. CanAnalyze also accounts for a
// request still in flight from before a reset.
type screenState struct {
	models.SessionState
	CanAnalyze bool `json:"can_analyze"`
	CanReset   bool `json:"can_reset"`
}

type galleryEntry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ScreenServer serves one detector screen per WebSocket connection.
type ScreenServer struct {
	// NewMedia builds the media capability for a session; gallery selections
	// are routed through chooser.
	NewMedia  func(chooser utils.GalleryChooser) MediaAcquirer
	Encoder   Encoder
	Inference Inference
	Publisher *utils.StatePublisher
}

// ScreenSession is the server side of one connected screen.
type ScreenSession struct {
	ID         string
	Connection *websocket.Conn
	Logger     *zap.Logger
	Controller *WorkflowController
	StartTime  time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	writeMu  sync.Mutex
	choiceCh chan string
	wg       sync.WaitGroup
}

func (s *ScreenServer) HandleScreenSession(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Error("Failed to upgrade to websocket", zap.Error(err))
		return
	}

	session := s.newSession(conn)
	session.Logger.Info("New screen session started")

	session.sendMessage("session", map[string]interface{}{"session_id": session.ID})
	session.sendState(session.Controller.State())

	session.listenWebsocketMessages()

	session.Stop()
	session.Logger.Info("Screen session ended", zap.Duration("uptime", time.Since(session.StartTime)))
}

func (s *ScreenServer) newSession(conn *websocket.Conn) *ScreenSession {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	session := &ScreenSession{
		ID:         id,
		Connection: conn,
		Logger:     zap.L().With(zap.String("session_id", id)),
		StartTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		choiceCh:   make(chan string, 1),
	}

	session.Controller = NewWorkflowController(id, ControllerDeps{
		Media:     s.NewMedia(utils.ChooserFunc(session.chooseFromGallery)),
		Encoder:   s.Encoder,
		Inference: s.Inference,
		Notifier:  NotifierFunc(func(alert models.Alert) { session.sendMessage("alert", alert) }),
		Logger:    zap.L(),
	})
	session.Controller.Subscribe(func(state models.SessionState) {
		session.sendState(state)
	})
	if s.Publisher != nil {
		session.Controller.Subscribe(s.Publisher.Listener(id, session.Logger))
	}
	return session
}

func (session *ScreenSession) listenWebsocketMessages() {
	for {
		var msg WebSocketMessage
		err := session.Connection.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				session.Logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "take_photo":
			session.goAction(func() { session.Controller.AcquireFromCamera(session.ctx) })
		case "open_gallery":
			session.goAction(func() { session.Controller.AcquireFromGallery(session.ctx) })
		case "pick_image":
			session.handlePickImage(msg.Data)
		case "analyze":
			session.goAction(func() {
				if err := session.Controller.Analyze(session.ctx); errors.Is(err, models.ErrAnalysisInProgress) {
					session.sendMessage("error", map[string]string{"message": err.Error()})
				}
			})
		case "reset":
			session.Controller.Reset()
		case "state":
			session.sendState(session.Controller.State())
		case "ping":
			session.sendMessage("pong", nil)
		case "stop":
			session.Logger.Info("Received stop command from client")
			session.sendMessage("stop_confirmation", map[string]interface{}{
				"session_id": session.ID,
				"message":    "Session stopped successfully",
			})
			return
		default:
			session.Logger.Warn("Unknown message type", zap.String("type", msg.Type))
			session.sendMessage("error", map[string]string{"message": "unknown message type: " + msg.Type})
		}
	}
}

func (session *ScreenSession) goAction(action func()) {
	session.wg.Add(1)
	go func() {
		defer session.wg.Done()
		action()
	}()
}

func (session *ScreenSession) handlePickImage(raw json.RawMessage) {
	var data pickImageData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			session.Logger.Error("Invalid pick_image data", zap.Error(err))
			session.sendMessage("error", map[string]string{"message": "invalid pick_image data"})
			return
		}
	}
	select {
	case session.choiceCh <- data.Name:
	default:
		session.Logger.Warn("pick_image received while no gallery is open")
	}
}

// chooseFromGallery sends the listing to the client and waits for its
// pick_image reply. A closed session counts as a dismissal.
func (session *ScreenSession) chooseFromGallery(ctx context.Context, items []utils.GalleryItem) (string, error) {
	select {
	case <-session.choiceCh:
	default:
	}

	entries := make([]galleryEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, galleryEntry{Name: item.Name, Size: item.Size, Modified: item.ModTime})
	}
	session.sendMessage("gallery", map[string]interface{}{"items": entries})

	select {
	case name := <-session.choiceCh:
		return name, nil
	case <-ctx.Done():
		return "", nil
	}
}

func (session *ScreenSession) sendState(state models.SessionState) {
	session.sendMessage("state", screenState{
		SessionState: state,
		CanAnalyze:   state.CanAnalyze() && session.Controller.CanAnalyze(),
		CanReset:     state.CanReset(),
	})
}

func (session *ScreenSession) sendMessage(msgType string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}

	session.writeMu.Lock()
	defer session.writeMu.Unlock()
	if err := session.Connection.WriteJSON(msg); err != nil {
		session.Logger.Debug("Failed to send websocket message", zap.Error(err), zap.String("type", msgType))
	}
}

// Stop cancels pending pickers, waits for running actions and closes the
// connection.
func (session *ScreenSession) Stop() {
	session.Logger.Info("Stopping session")
	session.cancel()
	session.wg.Wait()
	session.Connection.Close()
}
