// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ClientConfig is what the browser needs to render the wizard.
type ClientConfig struct {
	AcceptedFileTypes     []string `json:"acceptedFileTypes"`
	FilePrefix            string   `json:"filePrefix"`
	MaxConcurrent         int      `json:"maxConcurrent"`
	AllowTemplateDeletion bool     `json:"allowTemplateDeletion"`
}

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	client  ClientConfig
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, client ClientConfig) HealthHandler {
	if client.AcceptedFileTypes == nil {
		client.AcceptedFileTypes = []string{}
	}
	return &HealthHandlerImpl{
		version: version,
		client:  client,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleClientConfig returns the upload accept hint and generation settings
func (h *HealthHandlerImpl) HandleClientConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, h.client)
}
