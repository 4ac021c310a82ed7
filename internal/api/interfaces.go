// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/feniks/backend/internal/generator"
	"github.com/feniks/backend/internal/models"
	"github.com/feniks/backend/internal/wizard"
)

// HealthHandler handles health check and client configuration
type HealthHandler interface {
	HandleHealth(c echo.Context) error
	HandleClientConfig(c echo.Context) error
}

// TemplateHandler handles template administration
type TemplateHandler interface {
	HandleListTemplates(c echo.Context) error
	HandleCreateTemplate(c echo.Context) error
	HandleUpdateTemplate(c echo.Context) error
	HandleDeleteTemplate(c echo.Context) error
	HandleGetActiveTemplate(c echo.Context) error
	HandleActivateTemplate(c echo.Context) error
	HandleDownloadTemplate(c echo.Context) error
	HandleDefaultTemplate(c echo.Context) error
}

// AnalysisHandler handles single document analysis
type AnalysisHandler interface {
	HandleAnalyze(c echo.Context) error
}

// WizardHandler handles wizard session operations
type WizardHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleUpdateForm(c echo.Context) error
	HandleContinue(c echo.Context) error
	HandleBack(c echo.Context) error
	HandleReplaceFiles(c echo.Context) error
	HandleStartAnalysis(c echo.Context) error
	HandleAnalysisProgressStream(c echo.Context) error
	HandleGetRecords(c echo.Context) error
	HandleGetRecordsMsgpack(c echo.Context) error
	HandleGenerate(c echo.Context) error
}

// SessionManager defines the interface for wizard session management
type SessionManager interface {
	Create() (models.Session, error)
	Get(id string) (models.Session, error)
	Touch(id string) bool
	Dispatch(id string, a wizard.Action) (models.Session, error)
	ReplaceFiles(id string, uploads []wizard.Upload) (models.Session, error)
	StartAnalysis(id string) (models.Session, error)
	Generate(ctx context.Context, id string) (*generator.Document, error)
	Delete(id string) error
}

// DocumentAnalyzer extracts record fields from one document.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, fileName string, content []byte) (models.RecordFields, error)
}
