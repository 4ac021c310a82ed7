package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/feniks/backend/internal/docx"
	"github.com/feniks/backend/internal/models"
)

func createSession(t *testing.T, a *testAPI) models.Session {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s models.Session
	decodeBody(t, rec, &s)
	return s
}

func uploadJSON(t *testing.T, a *testAPI, id string, files map[string][]byte, order ...string) models.Session {
	t.Helper()
	var list []uploadFile
	for _, name := range order {
		list = append(list, uploadFile{Name: name, Data: b64(files[name])})
	}
	rec := a.do(t, http.MethodPost, "/api/sessions/"+id+"/files", uploadRequest{Files: list})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s models.Session
	decodeBody(t, rec, &s)
	return s
}

func waitAnalyzed(t *testing.T, a *testAPI, id string) models.Session {
	t.Helper()
	var s models.Session
	require.Eventually(t, func() bool {
		var err error
		s, err = a.sessions.Get(id)
		return err == nil && !s.Analyzing
	}, 5*time.Second, 10*time.Millisecond)
	return s
}

func TestWizard_Steps(t *testing.T) {
	a := newTestAPI(t)
	s := createSession(t, a)
	assert.Equal(t, models.StepWelcome, s.Step)

	path := "/api/sessions/" + s.ID
	for _, want := range []models.Step{models.StepForm, models.StepUpload, models.StepUpload} {
		rec := a.do(t, http.MethodPost, path+"/continue", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decodeBody(t, rec, &s)
		assert.Equal(t, want, s.Step)
	}

	rec := a.do(t, http.MethodPost, path+"/back", nil)
	decodeBody(t, rec, &s)
	assert.Equal(t, models.StepForm, s.Step)

	rec = a.do(t, http.MethodGet, "/api/sessions/missing", nil)
	requireAPIError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = a.do(t, http.MethodPost, "/api/sessions/missing/keepalive", nil)
	requireAPIError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = a.do(t, http.MethodPost, path+"/keepalive", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWizard_FormPatch(t *testing.T) {
	a := newTestAPI(t)
	s := createSession(t, a)
	path := "/api/sessions/" + s.ID + "/form"

	rec := a.do(t, http.MethodPatch, path, map[string]string{"date": "12.03.2025", "meetingNumber": "4"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPatch, path, map[string]string{"protocolCount": "3"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &s)
	assert.Equal(t, models.MeetingForm{Date: "12.03.2025", MeetingNumber: "4", ProtocolCount: "3"}, s.Form)

	rec = a.do(t, http.MethodPatch, path, map[string]string{})
	requireAPIError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestWizard_MultipartUpload(t *testing.T) {
	a := newTestAPI(t)
	s := createSession(t, a)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, name := range []string{"a.docx", "b.docx"} {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		part.Write([]byte("content of " + name))
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID+"/files", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &s)
	require.Len(t, s.Files, 2)
	assert.Equal(t, "a.docx", s.Files[0].Name)
	assert.Equal(t, "b.docx", s.Files[1].Name)
	assert.Equal(t, 1, s.FileSetVersion)
}

func TestWizard_UploadValidation(t *testing.T) {
	a := newTestAPI(t)
	s := createSession(t, a)
	path := "/api/sessions/" + s.ID + "/files"

	rec := a.do(t, http.MethodPost, path, uploadRequest{Files: []uploadFile{{Name: "", Data: ""}}})
	requireAPIError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	rec = a.do(t, http.MethodPost, path, uploadRequest{Files: []uploadFile{{Name: "a.docx", Data: "***"}}})
	requireAPIError(t, rec, http.StatusBadRequest, "BAD_REQUEST")

	rec = a.do(t, http.MethodPost, "/api/sessions/missing/files", uploadRequest{})
	requireAPIError(t, rec, http.StatusNotFound, "NOT_FOUND")
}

// Two uploads, one unreadable, three protocols requested.
func TestWizard_EndToEnd(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/templates/default?save=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	s := createSession(t, a)
	path := "/api/sessions/" + s.ID

	rec = a.do(t, http.MethodPatch, path+"/form", map[string]string{
		"date":                "12.03.2025",
		"meetingNumber":       "4",
		"protocolCount":       "3",
		"firstProtocolNumber": "21",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	s = uploadJSON(t, a, s.ID, map[string][]byte{
		"a.docx": docxOf(t, contractText),
		"b.docx": []byte("not a document"),
	}, "a.docx", "b.docx")
	require.Len(t, s.Files, 2)
	assert.Empty(t, s.Records)

	rec = a.do(t, http.MethodPost, path+"/analyze", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started AnalysisProgress
	decodeBody(t, rec, &started)
	assert.Equal(t, 2, started.Total)

	s = waitAnalyzed(t, a, s.ID)

	rec = a.do(t, http.MethodGet, path+"/analysis/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"processed":2`)
	assert.Contains(t, rec.Body.String(), `"analyzing":false`)

	rec = a.do(t, http.MethodGet, path+"/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records struct {
		Records []models.AnalyzedRecord `json:"records"`
		Total   int                     `json:"total"`
	}
	decodeBody(t, rec, &records)
	require.Len(t, records.Records, 2)
	assert.Equal(t, "a.docx", records.Records[0].FileName)
	assert.Equal(t, "Иванов Иван Иванович", records.Records[0].FIO)
	assert.Equal(t, models.ServiceContract, records.Records[0].ServiceType)
	assert.Equal(t, models.NewFailedRecord("b.docx", ""), records.Records[1])
	assert.NotContains(t, rec.Body.String(), `"fio":""`)

	rec = a.do(t, http.MethodGet, path+"/records/msgpack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))
	var packed []models.AnalyzedRecord
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, s.Records, packed)

	rec = a.do(t, http.MethodPost, path+"/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, docxMIME, rec.Header().Get("Content-Type"))
	assert.Equal(t, "3", rec.Header().Get("X-Protocol-Count"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	text, err := docx.ExtractText(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Contains(t, text, "ПРОТОКОЛ № 21\n\nФИО: Иванов Иван Иванович")
	assert.Contains(t, text, "ПРОТОКОЛ № 22\n\nФИО: \n")
	assert.Contains(t, text, "ПРОТОКОЛ № 23")
	assert.NotContains(t, text, "ПРОТОКОЛ № 24")
}

func TestWizard_ReplaceFilesClearsRecords(t *testing.T) {
	a := newTestAPI(t)
	s := createSession(t, a)

	uploadJSON(t, a, s.ID, map[string][]byte{"a.docx": docxOf(t, contractText)}, "a.docx")
	rec := a.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/analyze", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	s = waitAnalyzed(t, a, s.ID)
	require.Len(t, s.Records, 1)

	s = uploadJSON(t, a, s.ID, map[string][]byte{"b.docx": []byte("x")}, "b.docx")
	assert.Empty(t, s.Records)
	assert.Equal(t, 2, s.FileSetVersion)
}

func TestWizard_GenerateWithoutTemplate(t *testing.T) {
	a := newTestAPI(t)
	s := createSession(t, a)

	rec := a.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/generate", nil)
	requireAPIError(t, rec, http.StatusUnprocessableEntity, "GENERATION_FAILED")
	assert.False(t, strings.Contains(rec.Header().Get("Content-Type"), "wordprocessingml"))

	got, err := a.sessions.Get(s.ID)
	require.NoError(t, err)
	assert.False(t, got.Generating)
	assert.NotEmpty(t, got.LastError)

	rec = a.do(t, http.MethodPost, "/api/sessions/missing/generate", nil)
	requireAPIError(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestWizard_GenerateHugeCountKeepsSessionUsable(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodPost, "/api/templates/default?save=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	s := createSession(t, a)
	path := "/api/sessions/" + s.ID
	rec = a.do(t, http.MethodPatch, path+"/form", map[string]string{"protocolCount": "9223372036854775807"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, path+"/generate", nil)
	requireAPIError(t, rec, http.StatusUnprocessableEntity, "GENERATION_FAILED")

	got, err := a.sessions.Get(s.ID)
	require.NoError(t, err)
	assert.False(t, got.Busy())

	rec = a.do(t, http.MethodPatch, path+"/form", map[string]string{"protocolCount": "2"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodPost, path+"/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Protocol-Count"))

	rec = a.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWizard_ProgressStreamUnknownSession(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/sessions/missing/analysis/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data: {\"error\":\"session not found\"}\n\n", rec.Body.String())
}

func TestWizard_DeleteSession(t *testing.T) {
	a := newTestAPI(t)
	s := createSession(t, a)

	rec := a.do(t, http.MethodDelete, "/api/sessions/"+s.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/sessions/"+s.ID, nil)
	requireAPIError(t, rec, http.StatusNotFound, "NOT_FOUND")
}
