package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/handlers"
	"stealth-backend/internal/middleware"
)

// Handlers bundles every HTTP handler the relay serves.
type Handlers struct {
	JWT       *handlers.JWTManager
	Auth      *handlers.AuthHandler
	AdminAuth *handlers.AdminAuthHandler
	Intents   *handlers.IntentHandler
	Releases  *handlers.ReleaseHandler
	Batches   *handlers.BatchHandler
	Admin     *handlers.AdminHandler
	WebSocket *handlers.WebSocketHandler
}

// SetupAPIRoutes registers the /api routes
func SetupAPIRoutes(r *gin.Engine, h *Handlers, localhostOnly *middleware.LocalhostOnly) {
	logger := logrus.StandardLogger()
	authMiddleware := middleware.NewAuthMiddleware(logger, h.JWT)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(logger, h.AdminAuth)

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheckHandler)

		// ============ Auth ============
		auth := api.Group("/auth")
		{
			auth.POST("/nonce", h.Auth.GenerateNonceHandler)
			auth.POST("/login", h.Auth.AuthenticateHandler)
		}

		// ============ Intents ============
		intents := api.Group("/intents")
		{
			intents.GET("/pending", h.Intents.ListPendingIntentsHandler)
			intents.GET("/:id", h.Intents.GetIntentHandler)
			intents.POST("", authMiddleware.RequireAuth(), h.Intents.SubmitIntentHandler)
			intents.DELETE("/:id", authMiddleware.RequireAuth(), h.Intents.CancelIntentHandler)
		}

		my := api.Group("/my")
		my.Use(authMiddleware.RequireAuth())
		{
			my.GET("/intents", h.Intents.ListMyIntentsHandler)
		}

		// ============ Releases (execution is permissionless) ============
		releases := api.Group("/releases")
		{
			releases.GET("/pending", h.Releases.ListPendingReleasesHandler)
			releases.GET("/ready", h.Releases.ListReadyReleasesHandler)
			releases.GET("/:id", h.Releases.GetReleaseHandler)
			releases.POST("/:id/execute", h.Releases.ExecuteReleaseHandler)
		}

		// ============ Batches / relay ============
		api.GET("/batches", h.Batches.ListBatchesHandler)
		api.GET("/relay/status", h.Batches.RelayStatusHandler)

		// ============ WebSocket ============
		api.GET("/ws", h.WebSocket.HandleWebSocket)

		// ============ Admin (localhost / whitelist only) ============
		admin := api.Group("/admin")
		admin.Use(localhostOnly.Restrict())
		{
			admin.POST("/login", h.AdminAuth.AdminLoginHandler)

			secured := admin.Group("")
			secured.Use(adminAuthMiddleware.RequireAdminAuth())
			{
				secured.PUT("/enclave-signer", h.Admin.RotateEnclaveSignerHandler)
				secured.POST("/batches/trigger", h.Admin.TriggerBatchHandler)
			}
		}
	}
}
