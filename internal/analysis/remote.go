package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/feniks/backend/internal/models"
)

// RemoteAnalyzer delegates extraction to an HTTP endpoint that accepts
// {"fileContent": "<base64>"} and answers with the record fields.
type RemoteAnalyzer struct {
	url    string
	client *http.Client
}

// NewRemoteAnalyzer creates an analyzer for url. A zero timeout means none.
func NewRemoteAnalyzer(url string, timeout time.Duration) *RemoteAnalyzer {
	return &RemoteAnalyzer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	FileContent string `json:"fileContent"`
}

// Analyze posts content and decodes the response. Any non-2xx status is an error.
func (a *RemoteAnalyzer) Analyze(ctx context.Context, fileName string, content []byte) (models.RecordFields, error) {
	var fields models.RecordFields

	body, err := json.Marshal(analyzeRequest{FileContent: base64.StdEncoding.EncodeToString(content)})
	if err != nil {
		return fields, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fields, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fields, fmt.Errorf("analyze %s: %w", fileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fields, fmt.Errorf("analyze %s: status %d: %s", fileName, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return fields, fmt.Errorf("analyze %s: decode response: %w", fileName, err)
	}
	return fields, nil
}
