// Package client talks to the template endpoints of a running server.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/feniks/backend/internal/models"
)

// ErrNotFound is matched by errors for 404 responses.
var ErrNotFound = errors.New("not found")

// Error is a non-2xx response.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client is a thin JSON client. The zero timeout means none.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// TemplateList is the GET /api/templates response.
type TemplateList struct {
	Templates []models.Template    `json:"templates"`
	Stats     models.TemplateStats `json:"stats"`
}

type templateRequest struct {
	TemplateID  string  `json:"templateId,omitempty"`
	Name        *string `json:"name,omitempty"`
	FileContent *string `json:"fileContent,omitempty"`
}

type templateFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FileContent string `json:"fileContent"`
	FileName    string `json:"fileName"`
}

// ListTemplates returns all templates, newest first.
func (c *Client) ListTemplates(ctx context.Context) ([]models.Template, error) {
	var out TemplateList
	if err := c.do(ctx, http.MethodGet, "/api/templates", nil, &out); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return out.Templates, nil
}

// CreateTemplate uploads a new template.
func (c *Client) CreateTemplate(ctx context.Context, name string, content []byte) (*models.Template, error) {
	encoded := base64.StdEncoding.EncodeToString(content)
	req := templateRequest{Name: &name, FileContent: &encoded}

	var out models.Template
	if err := c.do(ctx, http.MethodPost, "/api/templates", req, &out); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return &out, nil
}

// UpdateTemplate renames a template and, when content is non-nil, replaces its file.
func (c *Client) UpdateTemplate(ctx context.Context, id string, name *string, content []byte) (*models.Template, error) {
	req := templateRequest{TemplateID: id, Name: name}
	if content != nil {
		encoded := base64.StdEncoding.EncodeToString(content)
		req.FileContent = &encoded
	}

	var out models.Template
	if err := c.do(ctx, http.MethodPut, "/api/templates", req, &out); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return &out, nil
}

// DeleteTemplate removes a template.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	req := templateRequest{TemplateID: id}
	if err := c.do(ctx, http.MethodDelete, "/api/templates", req, nil); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// ActivateTemplate selects the template used for generation.
func (c *Client) ActivateTemplate(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/api/templates/"+url.PathEscape(id)+"/activate", nil, nil); err != nil {
		return fmt.Errorf("activate template: %w", err)
	}
	return nil
}

// FetchActiveTemplate downloads the binary of the active template.
func (c *Client) FetchActiveTemplate(ctx context.Context) ([]byte, error) {
	var out templateFile
	if err := c.do(ctx, http.MethodGet, "/api/templates/active", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch active template: %w", err)
	}
	return decodeContent(out.FileContent)
}

// DefaultTemplate builds the stock template on the server. With save the
// server also stores it.
func (c *Client) DefaultTemplate(ctx context.Context, save bool) (string, []byte, error) {
	method, path := http.MethodGet, "/api/templates/default"
	if save {
		method, path = http.MethodPost, path+"?save=true"
	}
	var out templateFile
	if err := c.do(ctx, method, path, nil, &out); err != nil {
		return "", nil, fmt.Errorf("default template: %w", err)
	}
	content, err := decodeContent(out.FileContent)
	return out.FileName, content, err
}

func decodeContent(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty file content: %w", ErrNotFound)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode file content: %w", err)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// decodeResponse turns a non-2xx status into *Error and decodes the body into out.
func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
