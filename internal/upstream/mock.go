package upstream

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests. The hook functions receive
// the zero-based call number, so tests can fail the first N calls and then
// succeed.
type MockClient struct {
	// TargetName defaults to "mock".
	TargetName string

	// AnalyzeFunc handles Analyze calls. If nil, Analyze returns an empty
	// result.
	AnalyzeFunc func(call int, meta WorkMeta, units []UnitText, hint RangeHint) (*ExtractionResult, error)

	// TranslateFunc handles Translate calls. If nil, Translate echoes its
	// input.
	TranslateFunc func(call int, text string, tc TranslateContext) (string, error)

	mu             sync.Mutex
	analyzeCalls   int
	translateCalls int
}

// Name returns the target identifier.
func (m *MockClient) Name() string {
	if m.TargetName == "" {
		return "mock"
	}
	return m.TargetName
}

// Analyze dispatches to AnalyzeFunc.
func (m *MockClient) Analyze(ctx context.Context, meta WorkMeta, units []UnitText, hint RangeHint) (*ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	call := m.analyzeCalls
	m.analyzeCalls++
	fn := m.AnalyzeFunc
	m.mu.Unlock()

	if fn == nil {
		return &ExtractionResult{}, nil
	}
	return fn(call, meta, units, hint)
}

// Translate dispatches to TranslateFunc.
func (m *MockClient) Translate(ctx context.Context, text string, tc TranslateContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	call := m.translateCalls
	m.translateCalls++
	fn := m.TranslateFunc
	m.mu.Unlock()

	if fn == nil {
		return text, nil
	}
	return fn(call, text, tc)
}

// AnalyzeCalls returns how many Analyze calls were made.
func (m *MockClient) AnalyzeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzeCalls
}

// TranslateCalls returns how many Translate calls were made.
func (m *MockClient) TranslateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.translateCalls
}
