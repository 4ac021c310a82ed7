package client_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feniks/backend/internal/client"
	"github.com/feniks/backend/internal/docx"
	"github.com/feniks/backend/internal/generator"
	"github.com/feniks/backend/internal/models"
)

func TestTemplateFetcher_GetsConfiguredURL(t *testing.T) {
	tmpl, err := docx.DefaultTemplate()
	require.NoError(t, err)

	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"fileContent": base64.StdEncoding.EncodeToString(tmpl),
		})
	}))
	defer srv.Close()

	f := client.NewTemplateFetcher(srv.URL+"?id=active", 0)
	content, err := f.FetchActiveTemplate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tmpl, content)
	assert.Equal(t, "/", gotPath)
	assert.Equal(t, "id=active", gotQuery)

	doc, err := generator.New(generator.RemoteSource{Fetcher: f}, "", nil).
		Generate(context.Background(), models.MeetingForm{ProtocolCount: "2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Protocols)
}

func TestTemplateFetcher_Errors(t *testing.T) {
	fetch := func(t *testing.T, status int, body string) error {
		t.Helper()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		source := generator.RemoteSource{Fetcher: client.NewTemplateFetcher(srv.URL, 0)}
		_, err := source.ActiveTemplate(context.Background())
		return err
	}

	t.Run("not found", func(t *testing.T) {
		err := fetch(t, http.StatusNotFound, `{"error":"Template not found"}`)
		assert.ErrorIs(t, err, generator.ErrTemplateNotFound)
	})

	t.Run("empty content", func(t *testing.T) {
		err := fetch(t, http.StatusOK, `{"fileContent":""}`)
		assert.ErrorIs(t, err, generator.ErrTemplateNotFound)
	})

	t.Run("server error", func(t *testing.T) {
		err := fetch(t, http.StatusInternalServerError, `boom`)
		var apiErr *client.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	})

	t.Run("bad base64", func(t *testing.T) {
		err := fetch(t, http.StatusOK, `{"fileContent":"%%%"}`)
		assert.ErrorContains(t, err, "decode file content")
	})
}
