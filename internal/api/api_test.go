package api

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/feniks/backend/internal/analysis"
	"github.com/feniks/backend/internal/docx"
	"github.com/feniks/backend/internal/generator"
	"github.com/feniks/backend/internal/storage"
	"github.com/feniks/backend/internal/wizard"
)

const contractText = `Иванов Иван Иванович, 05.03.1990 г.р.
старший сержант
в/ч 12345
Контракт заключён 01.02.2023
Подписан: командир части`

type testAPI struct {
	e         *echo.Echo
	templates storage.TemplateStore
	sessions  *wizard.Manager
}

func newTestAPI(t *testing.T, configure ...func(*Dependencies)) *testAPI {
	t.Helper()
	logger := zaptest.NewLogger(t)

	templates, err := storage.NewSQLiteTemplateStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { templates.Close() })

	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	local, err := analysis.NewLocalAnalyzer(analysis.DefaultRules())
	require.NoError(t, err)

	orch := analysis.NewOrchestrator(local, files, analysis.Options{}, logger)
	gen := generator.New(generator.StoreSource{Store: templates}, "", logger)
	sessions := wizard.NewManager(files, orch, gen, wizard.Options{}, logger)
	t.Cleanup(sessions.Close)

	deps := &Dependencies{
		Templates:             templates,
		Sessions:              sessions,
		Analyzer:              local,
		AllowTemplateDeletion: true,
		Version:               "test",
		Logger:                logger,
		Client: ClientConfig{
			AcceptedFileTypes: []string{".docx", ".doc"},
			FilePrefix:        generator.DefaultFilePrefix,
			MaxConcurrent:     1,
		},
	}
	for _, fn := range configure {
		fn(deps)
	}

	e := echo.New()
	SetupMiddleware(e, logger, true)
	RegisterRoutes(e, NewHandlers(deps))
	return &testAPI{e: e, templates: templates, sessions: sessions}
}

// do sends body as JSON unless it is already a []byte.
func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func docxOf(t *testing.T, text string) []byte {
	t.Helper()
	b := docx.NewBuilder()
	for _, line := range strings.Split(text, "\n") {
		b.Text(line)
	}
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func requireAPIError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var apiErr APIError
	decodeBody(t, rec, &apiErr)
	require.Equal(t, code, apiErr.Code)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"version":"test"`)

	rec = a.do(t, http.MethodGet, "/api/config/client", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg ClientConfig
	decodeBody(t, rec, &cfg)
	require.Equal(t, []string{".docx", ".doc"}, cfg.AcceptedFileTypes)
	require.Equal(t, "Заседание", cfg.FilePrefix)
}

func TestErrorHandler_UnknownRoute(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/nope", nil)
	requireAPIError(t, rec, http.StatusNotFound, "HTTP_ERROR")
}
