// handlers_analysis.go - Single document analysis handler
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AnalysisHandlerImpl implements the AnalysisHandler interface
type AnalysisHandlerImpl struct {
	analyzer DocumentAnalyzer
	logger   *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analyzer DocumentAnalyzer, logger *zap.Logger) AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandlerImpl{
		analyzer: analyzer,
		logger:   logger,
	}
}

type analyzeRequest struct {
	FileName    string  `json:"fileName"`
	FileContent *string `json:"fileContent"`
}

// HandleAnalyze extracts record fields from one base64 document
func (h *AnalysisHandlerImpl) HandleAnalyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	content, err := decodeFileContent(req.FileContent)
	if err != nil {
		return err
	}
	if content == nil {
		return NewBadRequestError("File content is required", nil)
	}

	name := req.FileName
	if name == "" {
		name = "document.docx"
	}

	fields, err := h.analyzer.Analyze(c.Request().Context(), name, content)
	if err != nil {
		h.logger.Warn("document analysis failed", zap.String("file", name), zap.Error(err))
		return NewInternalError("Parsing error: "+err.Error(), err)
	}

	return c.JSON(http.StatusOK, fields)
}
