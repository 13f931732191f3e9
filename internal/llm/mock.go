package llm

import (
	"context"
	"strings"
	"sync"
)

// MockProvider returns canned text without calling a backend. It backs the
// "mock" provider setting for offline runs and is used throughout the tests.
type MockProvider struct {
	Response string
	// Chunks, when set, is what Stream yields; otherwise Response is split
	// into words.
	Chunks []string
	// Err is returned from Generate and Stream.
	Err error
	// StreamErr is reported by the stream after all chunks are delivered.
	StreamErr error

	mu    sync.Mutex
	calls []Completion
}

// NewMockProvider returns a MockProvider with a default response.
func NewMockProvider(response string) *MockProvider {
	if response == "" {
		response = "New on Zenn this week! Take a look #Zenn"
	}
	return &MockProvider{Response: response}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) IsConfigured() bool { return true }

// Calls returns the completions received so far.
func (m *MockProvider) Calls() []Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Completion(nil), m.calls...)
}

func (m *MockProvider) record(c Completion) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func (m *MockProvider) Generate(ctx context.Context, c Completion) (string, error) {
	m.record(c)
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", classify(m.Name(), err)
	}
	return m.Response, nil
}

func (m *MockProvider) Stream(ctx context.Context, c Completion) (ChunkStream, error) {
	m.record(c)
	if m.Err != nil {
		return nil, m.Err
	}
	chunks := m.Chunks
	if chunks == nil {
		chunks = splitKeep(m.Response)
	}
	return &sliceStream{ctx: ctx, chunks: chunks, tail: m.StreamErr}, nil
}

// splitKeep splits s after each space so that the pieces concatenate back to s.
func splitKeep(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, " ")
}

type sliceStream struct {
	ctx    context.Context
	chunks []string
	pos    int
	cur    string
	tail   error
	err    error
	closed bool
}

func (s *sliceStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = classify("mock", err)
		return false
	}
	if s.pos >= len(s.chunks) {
		s.err = s.tail
		return false
	}
	s.cur = s.chunks[s.pos]
	s.pos++
	return true
}

func (s *sliceStream) Current() string { return s.cur }

func (s *sliceStream) Err() error { return s.err }

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}
