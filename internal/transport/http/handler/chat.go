package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rolechat/internal/ai"
	"rolechat/internal/app"
	"rolechat/internal/roles"
	"rolechat/internal/transport/http/middleware"
	"rolechat/internal/transport/http/response"
)

const (
	exportFileName       = "chat_history.txt"
	redactedGatewayError = "the model service is unavailable, please try again later"
)

type ChatHandler struct {
	authService    *app.AuthService
	sessionService *app.SessionService
	conversations  *app.ConversationService
	chatService    *app.ChatService
	registry       *roles.Registry
	redactErrors   bool
	log            logrus.FieldLogger
}

type ChatRequest struct {
	Message string `json:"message"`
}

type SetRoleRequest struct {
	Role string `json:"role" form:"role"`
}

type historyEntry struct {
	UserText  string `json:"user_text"`
	BotReply  string `json:"bot_reply"`
	Timestamp string `json:"timestamp"`
}

func NewChatHandler(
	authService *app.AuthService,
	sessionService *app.SessionService,
	conversations *app.ConversationService,
	chatService *app.ChatService,
	registry *roles.Registry,
	redactErrors bool,
	log logrus.FieldLogger,
) *ChatHandler {
	return &ChatHandler{
		authService:    authService,
		sessionService: sessionService,
		conversations:  conversations,
		chatService:    chatService,
		registry:       registry,
		redactErrors:   redactErrors,
		log:            log,
	}
}

// Index returns the chat page model: the user, the active role, the role
// choices and the full history.
func (h *ChatHandler) Index(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, app.ErrUnauthenticated.Error())
		return
	}

	ctx := c.Request.Context()
	user, err := h.authService.GetUser(ctx, session.UserID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("load user failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load user failed")
		return
	}
	if user == nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, app.ErrUnauthenticated.Error())
		return
	}

	history, err := h.conversations.History(ctx, session.UserID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("load history failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load history failed")
		return
	}
	entries := make([]historyEntry, 0, len(history))
	for _, msg := range history {
		entries = append(entries, historyEntry{
			UserText:  msg.UserText,
			BotReply:  msg.BotReply,
			Timestamp: msg.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}

	response.OK(c, gin.H{
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
		},
		"role":    session.Role,
		"roles":   h.registry.List(),
		"history": entries,
	})
}

func (h *ChatHandler) Chat(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, app.ErrUnauthenticated.Error())
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	reply, err := h.chatService.HandleTurn(c.Request.Context(), app.Actor{
		UserID: session.UserID,
		Role:   session.Role,
	}, req.Message)
	if err != nil {
		var gwErr *ai.GatewayError
		switch {
		case errors.Is(err, app.ErrEmptyMessage):
			response.Error(c, http.StatusBadRequest, response.CodeEmptyMessage, err.Error())
		case errors.Is(err, app.ErrUnauthenticated):
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
		case errors.As(err, &gwErr):
			message := gwErr.Error()
			if h.redactErrors {
				message = redactedGatewayError
			}
			response.Error(c, http.StatusBadGateway, response.CodeGateway, message)
		default:
			h.log.WithError(err).WithField("user_id", session.UserID).Error("chat turn failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat failed")
		}
		return
	}

	response.OK(c, gin.H{"reply": reply})
}

func (h *ChatHandler) SetRole(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, app.ErrUnauthenticated.Error())
		return
	}

	var req SetRoleRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	active, err := h.sessionService.SetRole(c.Request.Context(), session, req.Role)
	if err != nil {
		h.log.WithError(err).WithField("session_id", session.ID).Error("set role failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "set role failed")
		return
	}

	if middleware.WantsHTML(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	response.OK(c, gin.H{"role": active})
}

func (h *ChatHandler) Download(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, app.ErrUnauthenticated.Error())
		return
	}

	text, err := h.conversations.ExportText(c.Request.Context(), session.UserID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("export history failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "export failed")
		return
	}

	c.Header("Content-Disposition", "attachment;filename="+exportFileName)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

func (h *ChatHandler) Roles(c *gin.Context) {
	response.OK(c, gin.H{"roles": h.registry.List()})
}
