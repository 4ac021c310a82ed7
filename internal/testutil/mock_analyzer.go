package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/feniks/backend/internal/models"
)

// MockAnalyzer returns the document content as FIO. Contents listed in
// Fail produce ErrInjected. It records call order and peak concurrency.
type MockAnalyzer struct {
	Fail  map[string]bool
	Delay time.Duration

	mu       sync.Mutex
	calls    []string
	inFlight int
	peak     int
}

// Analyze implements analysis.Analyzer.
func (a *MockAnalyzer) Analyze(ctx context.Context, fileName string, content []byte) (models.RecordFields, error) {
	a.mu.Lock()
	a.calls = append(a.calls, fileName)
	a.inFlight++
	if a.inFlight > a.peak {
		a.peak = a.inFlight
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return models.RecordFields{}, ctx.Err()
		}
	}
	if a.Fail[string(content)] {
		return models.RecordFields{}, ErrInjected
	}
	return models.RecordFields{FIO: string(content)}, nil
}

// Calls returns the file names analyzed so far.
func (a *MockAnalyzer) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// Peak returns the highest number of concurrent Analyze calls seen.
func (a *MockAnalyzer) Peak() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peak
}
