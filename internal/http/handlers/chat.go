package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/http/response"
	"github.com/morav/folio-backend/internal/modules/chat"
	"github.com/morav/folio-backend/internal/modules/chat/steps"
	"github.com/morav/folio-backend/internal/platform/ctxutil"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/sse"
)

type ChatHandler struct {
	log  *logger.Logger
	chat *chat.Usecases
}

func NewChatHandler(log *logger.Logger, uc *chat.Usecases) *ChatHandler {
	return &ChatHandler{log: log, chat: uc}
}

type chatMessageReq struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type chatTurnReq struct {
	ConversationID string             `json:"conversation_id"`
	Client         domain.ClientState `json:"client"`
	Messages       []chatMessageReq   `json:"messages"`
}

func (r chatTurnReq) toTurnInput() (steps.TurnInput, error) {
	if len(r.Messages) == 0 {
		return steps.TurnInput{}, fmt.Errorf("messages must not be empty")
	}
	window := make([]domain.Message, 0, len(r.Messages))
	for i, m := range r.Messages {
		role := domain.Role(strings.ToLower(strings.TrimSpace(m.Role)))
		switch role {
		case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
		default:
			return steps.TurnInput{}, fmt.Errorf("messages[%d] has invalid role %q", i, m.Role)
		}
		window = append(window, domain.Message{Role: role, Text: m.Text})
	}
	if window[len(window)-1].Role != domain.RoleUser || domain.LastUserMessage(window) == "" {
		return steps.TurnInput{}, fmt.Errorf("window must end in a non-empty user message")
	}
	return steps.TurnInput{Window: window, State: r.Client}, nil
}

// POST /api/chat
func (h *ChatHandler) Turn(c *gin.Context) {
	var req chatTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	in, err := req.toTurnInput()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.log.Info("chat turn",
		"request_id", ctxutil.RequestID(c.Request.Context()),
		"conversation_id", req.ConversationID,
		"window", len(in.Window),
	)
	resp, err := h.chat.Turn(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "upstream_auth_failure", fmt.Errorf("assistant unavailable"))
		return
	}
	response.RespondOK(c, resp)
}

// POST /api/chat/stream
func (h *ChatHandler) StreamTurn(c *gin.Context) {
	var req chatTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	in, err := req.toTurnInput()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	stream, err := sse.Open(h.log, c.Writer)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", err)
		return
	}
	defer stream.Close()

	h.log.Info("chat stream turn",
		"request_id", ctxutil.RequestID(c.Request.Context()),
		"conversation_id", req.ConversationID,
		"window", len(in.Window),
	)
	_, _ = h.chat.StreamTurn(c.Request.Context(), in, &streamEmitter{stream: stream})
}

// streamEmitter maps pipeline progress onto SSE events.
type streamEmitter struct {
	stream *sse.Stream
}

func (e *streamEmitter) Stage(_ context.Context, stage steps.Stage) {
	e.stream.Send("stage", gin.H{"stage": string(stage)})
}

func (e *streamEmitter) Directive(_ context.Context, d domain.Directive) {
	e.stream.Send("directive", d)
}

func (e *streamEmitter) Delta(_ context.Context, text string) {
	e.stream.Send("delta", gin.H{"text": text})
}

func (e *streamEmitter) Done(_ context.Context, resp domain.TurnResponse) {
	e.stream.Send("done", resp)
}

func (e *streamEmitter) Failed(_ context.Context, kind steps.FailureKind) {
	e.stream.Send("error", gin.H{"kind": string(kind)})
}
