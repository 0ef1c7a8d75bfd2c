package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/middleware"
	"github.com/ujianku/ujianku-backend/internal/service"
	ws "github.com/ujianku/ujianku-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// WSHandler handles the WebSocket exam channel: keepalive pings carrying
// the authoritative timer, and low-latency answer autosave.
type WSHandler struct {
	attemptService *service.AttemptService
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Upgrades to WebSocket. Each ping revalidates the device session, so a
// connection whose session was claimed by another device dies on the next
// ping rather than living until the socket closes.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	userID := claims.UserID

	if err := h.sessionService.Validate(context.Background(), userID, claims.ID); err != nil {
		ws.WriteError(conn, "session no longer valid")
		return
	}

	if _, err := h.attemptService.Details(context.Background(), userID, examID); err != nil {
		ws.WriteError(conn, "no active attempt for this exam")
		return
	}

	wsLog := h.log.With().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.AutosaveRequest
		err := ws.ReadJSON(conn, &msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionPing:
			if !h.handlePing(conn, wsLog, userID, examID, claims.ID) {
				return
			}
		case ws.ActionAutosave:
			h.handleAutosave(conn, wsLog, userID, examID, &msg)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handlePing revalidates the session and answers with the remaining time.
// Returns false when the connection must be torn down.
func (h *WSHandler) handlePing(conn *websocket.Conn, wsLog zerolog.Logger, userID int, examID uuid.UUID, sessionID string) bool {
	ctx := context.Background()

	if err := h.sessionService.Validate(ctx, userID, sessionID); err != nil {
		wsLog.Info().Msg("Session invalidated mid-stream")
		ws.WriteError(conn, "session no longer valid")
		return false
	}

	details, err := h.attemptService.Details(ctx, userID, examID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) {
			// The attempt was reset or finalized while connected.
			ws.WriteError(conn, "no active attempt for this exam")
			return false
		}
		wsLog.Error().Err(err).Msg("Ping attempt lookup error")
		ws.WriteError(conn, "ping failed")
		return true
	}

	ws.WriteTyped(conn, ws.PongResponse{
		Event:       ws.EventPong,
		SecondsLeft: details.SecondsLeft,
	})
	return true
}

// handleAutosave saves a single answer draft through the mirror pipeline.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, wsLog zerolog.Logger, userID int, examID uuid.UUID, msg *ws.AutosaveRequest) {
	ctx := context.Background()

	if msg.QID == "" || msg.Answer == "" {
		ws.WriteError(conn, "q_id and ans are required")
		return
	}

	// QID must be a well-formed UUID to keep Redis keys clean.
	if _, err := uuid.Parse(msg.QID); err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	if err := h.attemptService.Autosave(ctx, userID, examID, msg.QID, msg.Answer); err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) {
			ws.WriteError(conn, "no active attempt for this exam")
			return
		}
		wsLog.Error().Err(err).Msg("Autosave error")
		ws.WriteError(conn, "save failed")
		return
	}

	ws.WriteTyped(conn, ws.AutosaveResponse{
		Event:  ws.EventSuccess,
		Status: "saved",
	})
}
