package model

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a scripted in-memory Provider useful for tests and
// examples. Responses are consumed in FIFO order; when the script is empty
// it echoes the prompt. Every request is recorded for assertions.
type MockProvider struct {
	mu       sync.Mutex
	info     Info
	script   []*Response
	err      error
	requests []Request
}

// NewMockProvider constructs a MockProvider with tool support enabled.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// Enqueue appends a scripted response returned by the next call.
func (m *MockProvider) Enqueue(resp *Response) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resp)
	return m
}

// EnqueueStructured is shorthand for scripting a structured-output response.
func (m *MockProvider) EnqueueStructured(message string, structured map[string]any) *MockProvider {
	return m.Enqueue(&Response{Message: message, Structured: structured})
}

// Fail makes every subsequent call return err.
func (m *MockProvider) Fail(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Requests returns the recorded requests in call order.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// GenerateMessage implements Provider.
func (m *MockProvider) GenerateMessage(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) > 0 {
		resp := m.script[0]
		m.script = m.script[1:]
		return resp, nil
	}
	return &Response{Message: fmt.Sprintf("Mock response to: %s", req.Prompt)}, nil
}

// GenerateStream implements Provider by chunking the scripted message rune
// by rune, attaching the structured payload to the final chunk.
func (m *MockProvider) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		resp, err := m.GenerateMessage(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		var accumulated string
		for _, r := range resp.Message {
			accumulated += string(r)
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Chunk{Delta: string(r), Accumulated: accumulated}:
			}
		}
		out <- Chunk{Accumulated: accumulated, Done: true, Structured: resp.Structured}
	}()
	return out, errCh
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }
