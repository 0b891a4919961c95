package http

import (
	"github.com/gin-gonic/gin"

	"rolechat/internal/bootstrap"
	"rolechat/internal/transport/http/handler"
	"rolechat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	authHandler := handler.NewAuthHandler(
		app.Auth,
		app.Sessions,
		handler.CookieConfig{
			Name:   app.Config.Auth.CookieName,
			Secure: app.Config.Auth.CookieSecure,
		},
		app.Log,
	)
	chatHandler := handler.NewChatHandler(
		app.Auth,
		app.Sessions,
		app.Conversations,
		app.Chat,
		app.Roles,
		app.Config.LLM.RedactErrors,
		app.Log,
	)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/roles", chatHandler.Roles)
	router.POST("/register", authHandler.Register)
	router.GET("/login", authHandler.LoginPage)
	router.POST("/login", authHandler.Login)

	protected := router.Group("/")
	protected.Use(middleware.RequireSession(app.Sessions, app.Config.Auth.CookieName))
	protected.GET("", chatHandler.Index)
	protected.POST("/chat", chatHandler.Chat)
	protected.POST("/set-role", chatHandler.SetRole)
	protected.GET("/download", chatHandler.Download)
	protected.GET("/logout", authHandler.Logout)
	protected.POST("/logout", authHandler.Logout)

	return router
}
