// handlers_wizard.go - Wizard session handlers
package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/feniks/backend/internal/models"
	"github.com/feniks/backend/internal/wizard"
)

// Progress stream defaults
const (
	DefaultProgressInterval = 100 * time.Millisecond
	DefaultProgressTimeout  = 5 * time.Minute
)

// WizardHandlerImpl implements the WizardHandler interface
type WizardHandlerImpl struct {
	sessions SessionManager
	logger   *zap.Logger

	progressInterval time.Duration
	progressTimeout  time.Duration
}

// NewWizardHandler creates a new wizard handler
func NewWizardHandler(sessions SessionManager, logger *zap.Logger) WizardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WizardHandlerImpl{
		sessions:         sessions,
		logger:           logger,
		progressInterval: DefaultProgressInterval,
		progressTimeout:  DefaultProgressTimeout,
	}
}

// AnalysisProgress is one event of the progress stream.
type AnalysisProgress struct {
	SessionID      string `json:"sessionId"`
	FileSetVersion int    `json:"fileSetVersion"`
	Analyzing      bool   `json:"analyzing"`
	Processed      int    `json:"processed"`
	Total          int    `json:"total"`
}

func progressOf(s models.Session) AnalysisProgress {
	return AnalysisProgress{
		SessionID:      s.ID,
		FileSetVersion: s.FileSetVersion,
		Analyzing:      s.Analyzing,
		Processed:      s.Processed,
		Total:          len(s.Files),
	}
}

type uploadFile struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded file content
}

type uploadRequest struct {
	Files []uploadFile `json:"files"`
}

// HandleCreateSession starts a new wizard session
func (h *WizardHandlerImpl) HandleCreateSession(c echo.Context) error {
	sess, err := h.sessions.Create()
	if err != nil {
		return sessionError(err, "")
	}
	return c.JSON(http.StatusCreated, sess)
}

// HandleGetSession returns the current session state
func (h *WizardHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("sessionId")
	sess, err := h.sessions.Get(id)
	if err != nil {
		return sessionError(err, id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessions.Touch(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleDeleteSession removes a session and its uploads
func (h *WizardHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if err := h.sessions.Delete(id); err != nil {
		return sessionError(err, id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *WizardHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if ok := h.sessions.Touch(id); !ok {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleUpdateForm merges the given form fields into the session
func (h *WizardHandlerImpl) HandleUpdateForm(c echo.Context) error {
	id := c.Param("sessionId")

	var patch models.FormPatch
	if err := c.Bind(&patch); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if patch.Empty() {
		return NewValidationError("form")
	}

	sess, err := h.sessions.Dispatch(id, wizard.FormFieldSet{Patch: patch})
	if err != nil {
		return sessionError(err, id)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleContinue moves the wizard one step forward
func (h *WizardHandlerImpl) HandleContinue(c echo.Context) error {
	return h.step(c, wizard.StepContinue{})
}

// HandleBack moves the wizard one step back
func (h *WizardHandlerImpl) HandleBack(c echo.Context) error {
	return h.step(c, wizard.StepBack{})
}

func (h *WizardHandlerImpl) step(c echo.Context, a wizard.Action) error {
	id := c.Param("sessionId")
	sess, err := h.sessions.Dispatch(id, a)
	if err != nil {
		return sessionError(err, id)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleReplaceFiles replaces the session's file set. Accepts multipart
// "files" fields or JSON {files:[{name, data}]}.
func (h *WizardHandlerImpl) HandleReplaceFiles(c echo.Context) error {
	id := c.Param("sessionId")

	var (
		uploads []wizard.Upload
		err     error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		uploads, err = readMultipartUploads(c)
	} else {
		uploads, err = readJSONUploads(c)
	}
	if err != nil {
		return err
	}

	sess, err := h.sessions.ReplaceFiles(id, uploads)
	if err != nil {
		if errors.Is(err, wizard.ErrSessionNotFound) {
			return NewNotFoundError("session", id)
		}
		return NewInternalError("failed to store files", err)
	}
	return c.JSON(http.StatusOK, sess)
}

func readMultipartUploads(c echo.Context) ([]wizard.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, NewBadRequestError("invalid multipart form", err)
	}

	headers := form.File["files"]
	uploads := make([]wizard.Upload, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return nil, NewInternalError("failed to open uploaded file", err)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return nil, NewInternalError("failed to read uploaded file", err)
		}
		uploads = append(uploads, wizard.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

func readJSONUploads(c echo.Context) ([]wizard.Upload, error) {
	var req uploadRequest
	if err := c.Bind(&req); err != nil {
		return nil, NewBadRequestError("invalid request body", err)
	}

	uploads := make([]wizard.Upload, 0, len(req.Files))
	for i, f := range req.Files {
		if f.Name == "" {
			return nil, NewValidationError(fmt.Sprintf("files[%d].name", i))
		}
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, NewBadRequestError("invalid base64 data for "+f.Name, err)
		}
		uploads = append(uploads, wizard.Upload{Name: f.Name, Data: data})
	}
	return uploads, nil
}

// HandleStartAnalysis analyzes the session's files in the background
func (h *WizardHandlerImpl) HandleStartAnalysis(c echo.Context) error {
	id := c.Param("sessionId")
	sess, err := h.sessions.StartAnalysis(id)
	if err != nil {
		return sessionError(err, id)
	}
	return c.JSON(http.StatusAccepted, progressOf(sess))
}

// HandleAnalysisProgressStream streams analysis progress via SSE
func (h *WizardHandlerImpl) HandleAnalysisProgressStream(c echo.Context) error {
	id := c.Param("sessionId")

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sess, err := h.sessions.Get(id)
	if err != nil {
		h.sendSSEError(c, "session not found")
		return nil
	}

	h.sendSSEData(c, progressOf(sess))
	if !sess.Analyzing {
		return nil
	}

	ticker := time.NewTicker(h.progressInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(h.progressTimeout)
	defer timeout.Stop()

	last := progressOf(sess)
	for {
		select {
		case <-ticker.C:
			sess, err := h.sessions.Get(id)
			if err != nil {
				h.sendSSEError(c, "session not found")
				return nil
			}
			h.sessions.Touch(id)

			p := progressOf(sess)
			if p != last || !p.Analyzing {
				h.sendSSEData(c, p)
				last = p
			}

			if !p.Analyzing {
				return nil
			}

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// HandleGetRecords returns the analysis results as JSON
func (h *WizardHandlerImpl) HandleGetRecords(c echo.Context) error {
	id := c.Param("sessionId")
	sess, err := h.sessions.Get(id)
	if err != nil {
		return sessionError(err, id)
	}
	h.sessions.Touch(id)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"records":   sess.Records,
		"analyzing": sess.Analyzing,
		"total":     len(sess.Files),
	})
}

// HandleGetRecordsMsgpack returns the analysis results as MessagePack
func (h *WizardHandlerImpl) HandleGetRecordsMsgpack(c echo.Context) error {
	id := c.Param("sessionId")
	sess, err := h.sessions.Get(id)
	if err != nil {
		return sessionError(err, id)
	}
	h.sessions.Touch(id)

	data, err := msgpack.Marshal(sess.Records)
	if err != nil {
		return NewInternalError("failed to encode records", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGenerate renders the meeting document and returns it as an attachment.
// Any generation failure is reported as a single GENERATION_FAILED error.
func (h *WizardHandlerImpl) HandleGenerate(c echo.Context) error {
	id := c.Param("sessionId")
	doc, err := h.sessions.Generate(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, wizard.ErrSessionNotFound) || errors.Is(err, wizard.ErrBusy) {
			return sessionError(err, id)
		}
		return NewGenerationError(err)
	}

	setAttachment(c, doc.Name)
	c.Response().Header().Set("X-Protocol-Count", strconv.Itoa(doc.Protocols))
	return c.Blob(http.StatusOK, docxMIME, doc.Content)
}

func (h *WizardHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *WizardHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}

func sessionError(err error, id string) error {
	switch {
	case errors.Is(err, wizard.ErrSessionNotFound):
		return NewNotFoundError("session", id)
	case errors.Is(err, wizard.ErrBusy):
		return NewConflictError("session is busy")
	case errors.Is(err, wizard.ErrTooManySessions):
		return NewServiceUnavailableError("too many active sessions")
	}
	return NewInternalError("session operation failed", err)
}
