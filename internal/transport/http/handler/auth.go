package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rolechat/internal/app"
	"rolechat/internal/transport/http/middleware"
	"rolechat/internal/transport/http/response"
)

type CookieConfig struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	authService    *app.AuthService
	sessionService *app.SessionService
	cookie         CookieConfig
	log            logrus.FieldLogger
}

// CredentialsRequest binds from JSON or an HTML form.
type CredentialsRequest struct {
	Email    string `json:"email" form:"email" binding:"required,max=100"`
	Password string `json:"password" form:"password" binding:"required"`
}

func NewAuthHandler(
	authService *app.AuthService,
	sessionService *app.SessionService,
	cookie CookieConfig,
	log logrus.FieldLogger,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionService: sessionService,
		cookie:         cookie,
		log:            log,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "email and password are required")
		case errors.Is(err, app.ErrDuplicateEmail):
			response.Error(c, http.StatusConflict, response.CodeEmailExists, err.Error())
		default:
			h.log.WithError(err).Error("register failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "register failed")
		}
		return
	}

	response.Created(c, gin.H{
		"id":    user.ID,
		"email": user.Email,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.sessionService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrAuthFailure):
			response.Error(c, http.StatusUnauthorized, response.CodeAuthFailure, err.Error())
		default:
			h.log.WithError(err).Error("login failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, result.Token, int(h.sessionService.TTL().Seconds()), "/", "", h.cookie.Secure, true)
	response.OK(c, gin.H{
		"token": result.Token,
		"user": gin.H{
			"id":    result.User.ID,
			"email": result.User.Email,
		},
		"role": result.Session.Role,
	})
}

// LoginPage answers browser redirects; the service has no bundled frontend.
func (h *AuthHandler) LoginPage(c *gin.Context) {
	response.OK(c, gin.H{
		"message": "POST email and password to /login",
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, app.ErrUnauthenticated.Error())
		return
	}

	if err := h.sessionService.Logout(c.Request.Context(), session.ID); err != nil {
		h.log.WithError(err).WithField("session_id", session.ID).Error("logout failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "logout failed")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	if middleware.WantsHTML(c) && c.Request.Method == http.MethodGet {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	response.OK(c, gin.H{"ok": true})
}
