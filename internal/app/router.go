package app

import (
	"client-delivery-backend/internal/handlers"
	"client-delivery-backend/internal/middleware"
	"client-delivery-backend/internal/webhooks"

	"github.com/gin-gonic/gin"
)

// Router mounts the HTTP surface.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.GET("/health", handlers.HealthHandler)
	if a.DB != nil {
		router.GET("/ready", handlers.ReadyHandler(a.DB))
	} else {
		router.GET("/ready", handlers.ReadyHandler(nil))
	}

	projects := handlers.NewProjectsHandler(a.Projects, cfg.AccessWindow, a.Logger)
	creds := handlers.NewCredentialsHandler(a.Frameio, ServiceFrameio, cfg.FrontendURL, a.Logger)
	hooks := handlers.NewWebhookHandler(a.Ingest, a.Logger,
		webhooks.NewStripeSource(cfg.Stripe.WebhookSecret),
		webhooks.NewFrameioSource(cfg.Frameio.WebhookSecret),
		webhooks.NewTrelloSource(cfg.Trello.WebhookSecret, cfg.Trello.CallbackURL),
	)

	// Webhooks (no auth, signature verified)
	router.POST("/webhooks/stripe", hooks.Handle(webhooks.ProviderStripe))
	router.POST("/webhooks/frameio", hooks.Handle(webhooks.ProviderFrameio))
	router.HEAD("/webhooks/trello", hooks.Probe)
	router.POST("/webhooks/trello", hooks.Handle(webhooks.ProviderTrello))

	router.GET("/oauth/frameio/callback", creds.Callback)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	// Projects
	api.POST("/projects", projects.CreateProject)
	api.GET("/projects", projects.ListProjects)
	api.GET("/projects/:id", projects.GetProject)
	api.GET("/projects/:id/status", projects.GetStatus)
	api.GET("/projects/:id/history", projects.GetHistory)
	api.POST("/projects/:id/intake", projects.SubmitIntake)
	api.POST("/projects/:id/accept", projects.Accept)

	// Files
	api.GET("/projects/:id/files", projects.ListFiles)
	api.POST("/projects/:id/files", projects.RecordUpload)
	api.POST("/projects/:id/upload-target", projects.UploadTarget)
	api.GET("/projects/:id/files/:file_id/download", projects.GetDownloadURL)
	api.GET("/projects/:id/files/:file_id/thumbnail", projects.GetThumbnail)

	// Revisions
	api.POST("/projects/:id/revisions/checkout", projects.StartRevisionCheckout)
	api.GET("/projects/:id/revisions/payment", projects.RevisionPaymentStatus)
	api.POST("/projects/:id/revisions/review-link", projects.GenerateReviewLink)
	api.POST("/projects/:id/revisions/instructions", projects.SubmitRevisionInstructions)

	api.POST("/subscriptions/checkout", projects.SubscriptionCheckout)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/frameio/status", creds.GetStatus)
	admin.POST("/frameio/refresh", creds.Refresh)
	admin.GET("/frameio/connect", creds.Connect)

	return router
}
