package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TemplateFetcher reads the active template from a template collaborator:
// a plain GET on url answering {"fileContent": "<base64>"}. Unlike Client
// the URL is used as is.
type TemplateFetcher struct {
	url  string
	http *http.Client
}

// NewTemplateFetcher creates a fetcher for url. The zero timeout means none.
func NewTemplateFetcher(url string, timeout time.Duration) *TemplateFetcher {
	return &TemplateFetcher{url: url, http: &http.Client{Timeout: timeout}}
}

// FetchActiveTemplate implements generator.ActiveFetcher.
func (f *TemplateFetcher) FetchActiveTemplate(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}
	defer resp.Body.Close()

	var out templateFile
	if err := decodeResponse(resp, &out); err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}
	return decodeContent(out.FileContent)
}
