package agent

import (
	"context"
	"sync"

	"github.com/StatsAiGuy/exeflow/internal/application/port/output"
)

// MockGateway is a scripted AgentGateway used in tests and dry runs:
// each Invoke pops the next scripted response.
type MockGateway struct {
	mu        sync.Mutex
	responses []*output.AgentResponse
	errs      []error
	requests  []output.AgentRequest
}

// NewMockGateway creates an empty scripted gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Script appends a response (or error) to the playback queue
func (m *MockGateway) Script(resp *output.AgentResponse, err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, err)
	return m
}

// ScriptDecision queues a completed decider response with the given JSON
func (m *MockGateway) ScriptDecision(decisionJSON string) *MockGateway {
	return m.Script(&output.AgentResponse{
		Status: output.AgentCompleted,
		Output: decisionJSON,
	}, nil)
}

// Invoke pops the next scripted response, recording the request
func (m *MockGateway) Invoke(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.responses) == 0 {
		return &output.AgentResponse{
			Status:        output.AgentFailed,
			FailureKind:   output.FailureKindExecution,
			FailureDetail: "mock gateway: no scripted response",
		}, nil
	}
	resp, err := m.responses[0], m.errs[0]
	m.responses = m.responses[1:]
	m.errs = m.errs[1:]
	return resp, err
}

// Requests returns a copy of all recorded requests
func (m *MockGateway) Requests() []output.AgentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := make([]output.AgentRequest, len(m.requests))
	copy(reqs, m.requests)
	return reqs
}

// HealthCheck always succeeds for the mock
func (m *MockGateway) HealthCheck(ctx context.Context) error {
	return nil
}

var _ output.AgentGateway = (*MockGateway)(nil)
