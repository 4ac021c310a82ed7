// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/feniks/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Templates             storage.TemplateStore
	Sessions              SessionManager
	Analyzer              DocumentAnalyzer
	Client                ClientConfig
	AllowTemplateDeletion bool
	Version               string
	Logger                *zap.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Templates TemplateHandler
	Analysis  AnalysisHandler
	Wizard    WizardHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Client),
		Templates: NewTemplateHandler(deps.Templates, deps.AllowTemplateDeletion, logger.Named("templates")),
		Analysis:  NewAnalysisHandler(deps.Analyzer, logger.Named("analysis")),
		Wizard:    NewWizardHandler(deps.Sessions, logger.Named("wizard")),
		WebSocket: NewWebSocketHandler(deps.Sessions, logger.Named("ws")),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/config/client", handlers.Health.HandleClientConfig)

	// Template administration
	templateGroup := apiGroup.Group("/templates")
	templateGroup.GET("", handlers.Templates.HandleListTemplates)
	templateGroup.POST("", handlers.Templates.HandleCreateTemplate)
	templateGroup.PUT("", handlers.Templates.HandleUpdateTemplate)
	templateGroup.DELETE("", handlers.Templates.HandleDeleteTemplate)
	templateGroup.GET("/active", handlers.Templates.HandleGetActiveTemplate)
	templateGroup.GET("/default", handlers.Templates.HandleDefaultTemplate)
	templateGroup.POST("/default", handlers.Templates.HandleDefaultTemplate)
	templateGroup.DELETE("/:id", handlers.Templates.HandleDeleteTemplate)
	templateGroup.POST("/:id/activate", handlers.Templates.HandleActivateTemplate)
	templateGroup.GET("/:id/file", handlers.Templates.HandleDownloadTemplate)

	// Single document analysis
	apiGroup.POST("/analyze", handlers.Analysis.HandleAnalyze)

	// Wizard sessions
	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Wizard.HandleCreateSession)
	sessionGroup.GET("/:sessionId", handlers.Wizard.HandleGetSession)
	sessionGroup.DELETE("/:sessionId", handlers.Wizard.HandleDeleteSession)
	sessionGroup.POST("/:sessionId/keepalive", handlers.Wizard.HandleSessionKeepAlive)
	sessionGroup.PATCH("/:sessionId/form", handlers.Wizard.HandleUpdateForm)
	sessionGroup.POST("/:sessionId/continue", handlers.Wizard.HandleContinue)
	sessionGroup.POST("/:sessionId/back", handlers.Wizard.HandleBack)
	sessionGroup.POST("/:sessionId/files", handlers.Wizard.HandleReplaceFiles)
	sessionGroup.POST("/:sessionId/analyze", handlers.Wizard.HandleStartAnalysis)
	sessionGroup.GET("/:sessionId/analysis/progress", handlers.Wizard.HandleAnalysisProgressStream)
	sessionGroup.GET("/:sessionId/records", handlers.Wizard.HandleGetRecords)
	sessionGroup.GET("/:sessionId/records/msgpack", handlers.Wizard.HandleGetRecordsMsgpack)
	sessionGroup.POST("/:sessionId/generate", handlers.Wizard.HandleGenerate)
	sessionGroup.GET("/:sessionId/ws", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware configures the error handler and JSON serializer
func SetupMiddleware(e *echo.Echo, logger *zap.Logger, showErrorDetails bool) {
	e.HTTPErrorHandler = NewErrorHandler(logger, showErrorDetails)
	e.JSONSerializer = JSONSerializer{}
}
