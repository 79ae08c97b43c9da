package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pixellab-dev/invigilo/internal/middleware"
	"github.com/pixellab-dev/invigilo/internal/proctor"
	"github.com/pixellab-dev/invigilo/internal/service"
	ws "github.com/pixellab-dev/invigilo/internal/websocket"
)

// timerSyncInterval is how often the server pushes a countdown resync.
const timerSyncInterval = 15 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the live session stream: sensor samples and exam actions
// in, integrity events, timer syncs and the graded result out.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Upgrades to WebSocket for the duration of an exam session. All writes go
// through a single writer goroutine fed by the outbound channel — gorilla
// connections allow one concurrent writer.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	live, err := h.sessionService.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", sessionID.String()).
		Str("candidate_id", live.CandidateID).
		Logger()
	wsLog.Info().Msg("Candidate connected")

	out := make(chan interface{}, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for v := range out {
			if err := ws.WriteTyped(conn, v); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed, dropping connection")
				conn.Close()
				return
			}
		}
	}()

	pumpStop := make(chan struct{})
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		h.pumpServerEvents(live, out, pumpStop)
	}()

	// Immediate resync so a reconnecting client recovers its countdown.
	h.enqueue(out, ws.TimerPush{Event: ws.EventTimer, Remaining: live.Session.TimeLeft()})

	h.readLoop(conn, live, out, wsLog)

	close(pumpStop)
	<-pumpDone
	close(out)
	<-writerDone
	wsLog.Info().Msg("Candidate disconnected")
}

// pumpServerEvents forwards engine-originated pushes (integrity events, the
// graded result, periodic timer syncs) to the outbound channel.
func (h *WSHandler) pumpServerEvents(live *service.LiveSession, out chan<- interface{}, stop <-chan struct{}) {
	ticker := time.NewTicker(timerSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-live.Events:
			h.enqueue(out, ws.IntegrityPush{
				Event:    ws.EventIntegrity,
				Source:   string(ev.Source),
				Severity: string(ev.Severity),
				Message:  ev.Message,
				At:       ev.At.Unix(),
			})
		case result := <-live.Graded:
			h.enqueue(out, gradedPush(live, result))
		case <-ticker.C:
			h.enqueue(out, ws.TimerPush{Event: ws.EventTimer, Remaining: live.Session.TimeLeft()})
		case <-stop:
			return
		}
	}
}

// enqueue drops the push when the outbound buffer is full rather than block
// behind a slow client.
func (h *WSHandler) enqueue(out chan<- interface{}, v interface{}) {
	select {
	case out <- v:
	default:
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, live *service.LiveSession, out chan<- interface{}, wsLog zerolog.Logger) {
	for {
		var msg ws.ClientMessage
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSensorStatus:
			live.Session.ResolveSensor(proctor.Source(msg.Sensor), proctor.AcquireStatus(msg.Status))

		case ws.ActionFrame:
			live.Session.PushFrame(frameSample(msg.Faces))

		case ws.ActionAudio:
			live.Session.PushAudio(proctor.AudioSample{RMS: msg.RMS, Profile: msg.Profile})

		case ws.ActionScreen:
			live.Session.PushScreen(proctor.ScreenSample{Event: proctor.ScreenEventKind(msg.Event)})

		case ws.ActionAnswer:
			if err := h.sessionService.SaveAnswer(context.Background(), live, msg.QuestionID, msg.OptionID); err != nil {
				h.enqueue(out, ws.ErrorPush{Event: ws.EventError, Error: err.Error()})
				continue
			}
			selected := live.Session.Snapshot().Answers[msg.QuestionID]
			h.enqueue(out, ws.AnswerAck{Event: ws.EventAnswerAck, QuestionID: msg.QuestionID, Selected: selected})

		case ws.ActionNavigate:
			live.Session.Navigate(msg.Delta)

		case ws.ActionSubmit:
			// The graded push arrives through the pump: the scored callback
			// feeds live.Graded exactly once, so pushing here too would hand
			// the client a duplicate.
			h.sessionService.Submit(live)

		case ws.ActionPing:
			h.enqueue(out, ws.PongPush{Event: ws.EventPong})

		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			h.enqueue(out, ws.ErrorPush{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

func gradedPush(live *service.LiveSession, result proctor.Result) ws.GradedPush {
	return ws.GradedPush{
		Event:      ws.EventGraded,
		Score:      result.Total,
		MaxScore:   result.MaxTotal,
		Failed:     live.Session.Monitor().HasFailed(),
		FailReason: live.Session.Monitor().FailReason(),
	}
}

// frameSample converts wire face payloads to engine samples.
func frameSample(payloads []ws.FacePayload) proctor.FrameSample {
	faces := make([]proctor.Face, 0, len(payloads))
	for _, fp := range payloads {
		landmarks := make([]proctor.Landmark, 0, len(fp.Landmarks))
		for _, lm := range fp.Landmarks {
			landmarks = append(landmarks, proctor.Landmark{X: lm[0], Y: lm[1]})
		}
		faces = append(faces, proctor.Face{Landmarks: landmarks})
	}
	return proctor.FrameSample{Faces: faces}
}
