package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/middleware"
	"github.com/stemsi/algoprep-backend/internal/response"
	"github.com/stemsi/algoprep-backend/internal/service"
	"github.com/stemsi/algoprep-backend/internal/session"
	"github.com/stemsi/algoprep-backend/internal/validator"
	ws "github.com/stemsi/algoprep-backend/internal/websocket"
	"github.com/stemsi/algoprep-backend/internal/worker"
)

const (
	outboxSize    = 64
	actionTimeout = 10 * time.Second
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
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

// WSHandler handles the interview stream and the practice editor socket.
type WSHandler struct {
	sessions *service.SessionService
	practice *service.PracticeService
	queue    service.Enqueuer
	clock    clockwork.Clock
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessions *service.SessionService,
	practice *service.PracticeService,
	queue service.Enqueuer,
	clock clockwork.Clock,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		practice: practice,
		queue:    queue,
		clock:    clock,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// InterviewStream godoc
// WS /ws/v1/interviews/:id/stream
// Carries user actions into the session and pushes its notifications back.
func (h *WSHandler) InterviewStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Resolve before upgrading so a missing session is a plain HTTP error.
	ctrl, err := h.sessions.Controller(claims.UserID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	out := ws.NewOutbox(conn, outboxSize)
	defer out.Close()

	notes, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go func() {
		for n := range notes {
			out.Event(ws.Event(n.Kind), "", n)
		}
	}()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Interview stream connected")

	h.sendState(ctrl, out, "")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.handleInterviewAction(ctrl, out, wsLog, &msg)
	}
}

func (h *WSHandler) handleInterviewAction(ctrl *session.Controller, out *ws.Outbox, wsLog zerolog.Logger, msg *ws.RequestPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch msg.Action {
	case ws.ActionPing:
		out.Event(ws.EventPong, msg.RequestID, nil)
		return

	case ws.ActionView:
		h.sendState(ctrl, out, msg.RequestID)
		return

	case ws.ActionNavigate:
		if msg.Index == nil {
			out.Error(msg.RequestID, string(response.ErrInvalidPayload), "index is required")
			return
		}
		if err := ctrl.Navigate(ctx, *msg.Index); err != nil {
			h.sendError(out, msg.RequestID, err)
			return
		}
		h.sendState(ctrl, out, msg.RequestID)
		return

	case ws.ActionSubmit:
		qid, err := uuid.Parse(msg.QuestionID)
		if err != nil {
			out.Error(msg.RequestID, string(response.ErrInvalidID), "invalid question_id")
			return
		}
		if msg.Language != "" && !validator.IsLanguage(msg.Language) {
			out.Error(msg.RequestID, string(response.ErrValidation), "unsupported language")
			return
		}
		err = ctrl.Submit(ctx, session.SubmitRequest{QuestionID: qid, Code: msg.Code, Language: msg.Language})
		if err != nil {
			h.sendError(out, msg.RequestID, err)
			return
		}
		out.Event(ws.EventAck, msg.RequestID, map[string]string{"question_id": qid.String(), "status": "pending"})
		return
	}

	ev, ok := toSessionEvent(msg)
	if !ok {
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		out.Error(msg.RequestID, string(response.ErrUnknownAction), "unknown action: "+string(msg.Action))
		return
	}
	if ev.Kind == session.EventLanguage && !validator.IsLanguage(ev.Language) {
		out.Error(msg.RequestID, string(response.ErrValidation), "unsupported language")
		return
	}

	qid, err := ctrl.Dispatch(ctx, ev)
	if err != nil {
		h.sendError(out, msg.RequestID, err)
		return
	}

	switch ev.Kind {
	case session.EventPaste:
		if err := h.queue.Enqueue(ctx, config.WorkerKey.PersistPasteEventsQueue, worker.PastePayload{
			SessionID:  ctrl.ID().String(),
			UserID:     ctrl.UserID(),
			QuestionID: qid.String(),
			Length:     ev.Length,
			Timestamp:  h.clock.Now().Unix(),
		}); err != nil {
			wsLog.Error().Err(err).Msg("Failed to queue paste event")
		}
	case session.EventSkip:
		h.sendState(ctrl, out, msg.RequestID)
		return
	}

	out.Event(ws.EventAck, msg.RequestID, map[string]string{"question_id": qid.String()})
}

func toSessionEvent(msg *ws.RequestPayload) (session.Event, bool) {
	switch msg.Action {
	case ws.ActionFlag:
		return session.Event{Kind: session.EventFlag}, true
	case ws.ActionHint:
		return session.Event{Kind: session.EventHint}, true
	case ws.ActionSkip:
		return session.Event{Kind: session.EventSkip}, true
	case ws.ActionRun:
		return session.Event{Kind: session.EventRun}, true
	case ws.ActionCode:
		return session.Event{Kind: session.EventCode, Code: msg.Code}, true
	case ws.ActionLanguage:
		return session.Event{Kind: session.EventLanguage, Language: msg.Language}, true
	case ws.ActionPaste:
		return session.Event{Kind: session.EventPaste, Length: msg.Length}, true
	}
	return session.Event{}, false
}

func (h *WSHandler) sendState(ctrl *session.Controller, out *ws.Outbox, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	view, err := ctrl.View(ctx)
	if err != nil {
		h.sendError(out, requestID, err)
		return
	}
	out.Event(ws.EventState, requestID, view)
}

func (h *WSHandler) sendError(out *ws.Outbox, requestID string, err error) {
	_, code, fields := classify(err)
	out.Send(ws.ErrorResponse{
		Event:     ws.EventError,
		RequestID: requestID,
		Code:      string(code),
		Error:     err.Error(),
		Fields:    fields,
	})
}

// PracticeEditor godoc
// WS /ws/v1/practice/questions/:question_id/editor
// Autosaves the editor buffer once typing pauses; closing the socket saves
// immediately.
func (h *WSHandler) PracticeEditor(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	qid := questionID.String()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	out := ws.NewOutbox(conn, outboxSize)
	defer out.Close()

	userID := claims.UserID
	defer h.practice.Flush(userID, qid)

	wsLog := h.log.With().Int("user_id", userID).Str("question_id", qid).Logger()
	wsLog.Debug().Msg("Practice editor connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		switch msg.Action {
		case ws.ActionEdit:
			if !validator.IsLanguage(msg.Language) {
				out.Error(msg.RequestID, string(response.ErrValidation), "unsupported language")
				continue
			}
			h.practice.Edit(userID, qid, msg.Language, msg.Code)
			out.Event(ws.EventAck, msg.RequestID, nil)
		case ws.ActionPing:
			out.Event(ws.EventPong, msg.RequestID, nil)
		default:
			out.Error(msg.RequestID, string(response.ErrUnknownAction), "unknown action: "+string(msg.Action))
		}
	}
}
