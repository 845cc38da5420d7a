package usecase_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/usecase"
)

const testSigningKey = "It's a Secret to Everybody"

type mockEngine struct {
	mu        sync.Mutex
	starts    []types.RunID
	startFunc func(ctx context.Context, runID types.RunID) (string, error)
	statuses  []*model.RunSnapshot
	polls     int
}

func (m *mockEngine) StartRun(ctx context.Context, pipeline *model.PipelineDefinition, entry model.ActionRef, runID types.RunID) (string, error) {
	m.mu.Lock()
	m.starts = append(m.starts, runID)
	fn := m.startFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, runID)
	}
	return "exec-" + string(runID), nil
}

// GetRunStatus returns the configured statuses in order and repeats the last one
func (m *mockEngine) GetRunStatus(ctx context.Context, handle string) (*model.RunSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.polls
	if idx >= len(m.statuses) {
		idx = len(m.statuses) - 1
	}
	m.polls++
	if idx < 0 {
		return &model.RunSnapshot{Status: model.RunRunning}, nil
	}
	return m.statuses[idx], nil
}

func (m *mockEngine) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.starts)
}

// mockSecretStore serves values from a map and records each name it was asked for
type mockSecretStore struct {
	mu      sync.Mutex
	values  map[types.SecretName]string
	denied  map[types.SecretName]bool
	fetched []types.SecretName
}

func newMockSecretStore(values map[types.SecretName]string) *mockSecretStore {
	return &mockSecretStore{values: values, denied: make(map[types.SecretName]bool)}
}

func (m *mockSecretStore) GetSecret(ctx context.Context, name types.SecretName) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, name)

	if m.denied[name] {
		return "", goerr.Wrap(types.ErrAccessDenied, "access denied", goerr.V("name", name))
	}
	value, ok := m.values[name]
	if !ok {
		return "", goerr.Wrap(types.ErrSecretNotFound, "secret not found", goerr.V("name", name))
	}
	return value, nil
}

func (m *mockSecretStore) Fetched() []types.SecretName {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.SecretName(nil), m.fetched...)
}

type mockNotifier struct {
	mu   sync.Mutex
	runs []*model.PipelineRun
	done chan struct{}
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{done: make(chan struct{}, 16)}
}

func (m *mockNotifier) NotifyRunFinished(ctx context.Context, run *model.PipelineRun) error {
	m.mu.Lock()
	m.runs = append(m.runs, run.Clone())
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *mockNotifier) Runs() []*model.PipelineRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.PipelineRun(nil), m.runs...)
}

func testPipeline() *model.PipelineDefinition {
	return model.NewReleasePipeline(model.ReleasePipelineConfig{
		ProjectName:   "blue",
		Owner:         "octo-org",
		Repo:          "octo-app",
		Branch:        "main",
		CredentialRef: "github-token",
	})
}

// newEvent builds a delivery the way the HTTP controller does. An empty key leaves the signature
// header empty.
func newEvent(t *testing.T, deliveryID, body, key string) *model.InboundEvent {
	t.Helper()

	var payload any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		payload = nil
	}

	ev := &model.InboundEvent{
		DeliveryID: deliveryID,
		EventType:  "release",
		RawBody:    []byte(body),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	if key != "" {
		ev.SignatureHeader = usecase.Sign(ev.RawBody, key)
	}
	return ev
}
