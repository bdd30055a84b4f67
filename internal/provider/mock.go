package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yoshihiko555/takt/internal/models"
)

// ScenarioEntry is one deterministic answer consumed by the mock
// provider, shaped as `{agent?, status, content}`.
type ScenarioEntry struct {
	Agent   string `json:"agent,omitempty"`
	Status  string `json:"status"`
	Content string `json:"content"`
}

// MockAdapter deterministically answers calls from a scenario file
// pointed to by TAKT_MOCK_SCENARIO, consuming entries
// FIFO: agent-specific entries are tried before unspecified ones so a
// scenario can pin specific personas while leaving a default for the
// rest.
type MockAdapter struct {
	mu        sync.Mutex
	perAgent  map[string][]ScenarioEntry
	unspecified []ScenarioEntry
}

// NewMockAdapter loads the scenario file named by opts.MockScenario (or
// the TAKT_MOCK_SCENARIO environment variable if unset). An empty or
// missing scenario is valid: every call then falls through to a default
// "done" response.
func NewMockAdapter(opts Options) (*MockAdapter, error) {
	path := opts.MockScenario
	if path == "" {
		path = os.Getenv("TAKT_MOCK_SCENARIO")
	}

	a := &MockAdapter{
		perAgent: make(map[string][]ScenarioEntry),
	}
	if path == "" {
		return a, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mock provider: reading scenario %s: %w", path, err)
	}

	var entries []ScenarioEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("mock provider: parsing scenario %s: %w", path, err)
	}

	for _, e := range entries {
		if e.Agent != "" {
			a.perAgent[e.Agent] = append(a.perAgent[e.Agent], e)
		} else {
			a.unspecified = append(a.unspecified, e)
		}
	}
	return a, nil
}

// Kind identifies this adapter.
func (a *MockAdapter) Kind() Kind { return Mock }

// Invoke pops the next scenario entry for req.Persona (agent-specific
// queue first, then the unspecified queue), or returns a default "done"
// response with the prompt echoed back when the scenario is exhausted.
func (a *MockAdapter) Invoke(ctx context.Context, req Request) (*models.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.pop(req.Persona)
	sessionID := req.ResumeSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if !ok {
		return &models.Response{
			Persona:          req.Persona,
			Status:           models.StatusDone,
			Content:          req.Prompt,
			Timestamp:        time.Now(),
			SessionID:        sessionID,
			StructuredOutput: req.Prompt,
		}, nil
	}

	status := models.Status(entry.Status)
	if status == "" {
		status = models.StatusDone
	}

	resp := &models.Response{
		Persona:   req.Persona,
		Status:    status,
		Content:   entry.Content,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
	if status == models.StatusError {
		resp.Error = entry.Content
	}
	if status == models.StatusDone {
		resp.StructuredOutput = entry.Content
	}
	return resp, nil
}

func (a *MockAdapter) pop(persona string) (ScenarioEntry, bool) {
	if queue, ok := a.perAgent[persona]; ok && len(queue) > 0 {
		entry := queue[0]
		a.perAgent[persona] = queue[1:]
		return entry, true
	}
	if len(a.unspecified) > 0 {
		entry := a.unspecified[0]
		a.unspecified = a.unspecified[1:]
		return entry, true
	}
	return ScenarioEntry{}, false
}
