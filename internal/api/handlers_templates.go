// handlers_templates.go - Template administration handlers
package api

import (
	"encoding/base64"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/feniks/backend/internal/docx"
	"github.com/feniks/backend/internal/models"
	"github.com/feniks/backend/internal/storage"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// TemplateHandlerImpl implements the TemplateHandler interface
type TemplateHandlerImpl struct {
	store         storage.TemplateStore
	allowDeletion bool
	logger        *zap.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(store storage.TemplateStore, allowDeletion bool, logger *zap.Logger) TemplateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateHandlerImpl{
		store:         store,
		allowDeletion: allowDeletion,
		logger:        logger,
	}
}

type templateRequest struct {
	TemplateID  string  `json:"templateId"`
	Name        *string `json:"name"`
	FileContent *string `json:"fileContent"`
}

type templateListResponse struct {
	Templates []models.Template    `json:"templates"`
	Stats     models.TemplateStats `json:"stats"`
}

type templateFileResponse struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	FileContent string `json:"fileContent"`
	FileName    string `json:"fileName,omitempty"`
	Message     string `json:"message,omitempty"`
}

// HandleListTemplates returns all templates, newest first, with stats
func (h *TemplateHandlerImpl) HandleListTemplates(c echo.Context) error {
	templates, err := h.store.List(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to list templates", err)
	}
	if templates == nil {
		templates = []models.Template{}
	}

	return c.JSON(http.StatusOK, templateListResponse{
		Templates: templates,
		Stats:     models.ComputeTemplateStats(templates),
	})
}

// HandleCreateTemplate stores a new template from base64 content
func (h *TemplateHandlerImpl) HandleCreateTemplate(c echo.Context) error {
	var req templateRequest
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

	name := models.DefaultTemplateName
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name = strings.TrimSpace(*req.Name)
	}

	tmpl, err := h.store.Create(c.Request().Context(), name, content)
	if err != nil {
		return NewInternalError("failed to store template", err)
	}

	h.logger.Info("template created",
		zap.String("id", tmpl.ID),
		zap.String("name", tmpl.Name),
		zap.Int64("size", tmpl.FileSize))
	return c.JSON(http.StatusCreated, tmpl)
}

// HandleUpdateTemplate renames a template and optionally replaces its file.
// Without templateId the active template is updated.
func (h *TemplateHandlerImpl) HandleUpdateTemplate(c echo.Context) error {
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	ctx := c.Request().Context()
	id := req.TemplateID
	if id == "" {
		active, _, err := h.store.Active(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("template", "")
		}
		if err != nil {
			return NewInternalError("failed to resolve active template", err)
		}
		id = active.ID
	}

	var name *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return NewValidationError("name")
		}
		name = &trimmed
	}

	content, err := decodeFileContent(req.FileContent)
	if err != nil {
		return err
	}

	tmpl, err := h.store.Update(ctx, id, name, content)
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("template", id)
	}
	if err != nil {
		return NewInternalError("failed to update template", err)
	}

	h.logger.Info("template updated",
		zap.String("id", tmpl.ID),
		zap.Bool("fileReplaced", content != nil))
	return c.JSON(http.StatusOK, tmpl)
}

// HandleDeleteTemplate removes a template by path id or body templateId
func (h *TemplateHandlerImpl) HandleDeleteTemplate(c echo.Context) error {
	if !h.allowDeletion {
		return NewForbiddenError("template deletion is disabled")
	}

	id := c.Param("id")
	if id == "" {
		var req templateRequest
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid request body", err)
		}
		id = req.TemplateID
	}
	if id == "" {
		return NewValidationError("templateId")
	}

	err := h.store.Delete(c.Request().Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("template", id)
	}
	if err != nil {
		return NewInternalError("failed to delete template", err)
	}

	h.logger.Info("template deleted", zap.String("id", id))
	return c.NoContent(http.StatusNoContent)
}

// HandleGetActiveTemplate returns the template used for generation
func (h *TemplateHandlerImpl) HandleGetActiveTemplate(c echo.Context) error {
	tmpl, content, err := h.store.Active(c.Request().Context())
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("template", "")
	}
	if err != nil {
		return NewInternalError("failed to load template", err)
	}

	return c.JSON(http.StatusOK, templateFileResponse{
		ID:          tmpl.ID,
		Name:        tmpl.Name,
		FileContent: base64.StdEncoding.EncodeToString(content),
	})
}

// HandleActivateTemplate selects the template used for generation
func (h *TemplateHandlerImpl) HandleActivateTemplate(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	ctx := c.Request().Context()
	err := h.store.Activate(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("template", id)
	}
	if err != nil {
		return NewInternalError("failed to activate template", err)
	}

	tmpl, err := h.store.Get(ctx, id)
	if err != nil {
		return NewInternalError("failed to load template", err)
	}
	h.logger.Info("template activated", zap.String("id", id))
	return c.JSON(http.StatusOK, tmpl)
}

// HandleDownloadTemplate streams the stored DOCX as an attachment
func (h *TemplateHandlerImpl) HandleDownloadTemplate(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	tmpl, err := h.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("template", id)
	}
	if err != nil {
		return NewInternalError("failed to load template", err)
	}

	content, err := h.store.Content(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("template", id)
	}
	if err != nil {
		return NewInternalError("failed to load template", err)
	}

	setAttachment(c, tmpl.Name+".docx")
	return c.Blob(http.StatusOK, docxMIME, content)
}

// HandleDefaultTemplate builds the stock template. With ?save=true it is
// also stored and becomes the newest template.
func (h *TemplateHandlerImpl) HandleDefaultTemplate(c echo.Context) error {
	content, err := docx.DefaultTemplate()
	if err != nil {
		return NewInternalError("failed to build default template", err)
	}

	resp := templateFileResponse{
		FileContent: base64.StdEncoding.EncodeToString(content),
		FileName:    docx.DefaultTemplateFileName,
		Message:     "Default template created successfully",
	}

	if save, _ := strconv.ParseBool(c.QueryParam("save")); save {
		tmpl, err := h.store.Create(c.Request().Context(), models.DefaultTemplateName, content)
		if err != nil {
			return NewInternalError("failed to store default template", err)
		}
		resp.ID = tmpl.ID
		resp.Name = tmpl.Name
		resp.Message = "Default template stored"
		h.logger.Info("default template stored", zap.String("id", tmpl.ID))
	}

	return c.JSON(http.StatusOK, resp)
}

// decodeFileContent returns nil for a missing or empty field.
func decodeFileContent(s *string) ([]byte, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(*s)
	if err != nil {
		return nil, NewBadRequestError("fileContent is not valid base64", err)
	}
	return data, nil
}

func setAttachment(c echo.Context, fileName string) {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
}
