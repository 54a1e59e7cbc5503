package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

type fakeWorker struct {
	name string
	role contracts.Role
	caps []string
}

func (f *fakeWorker) Name() string           { return f.name }
func (f *fakeWorker) Role() contracts.Role   { return f.role }
func (f *fakeWorker) Capabilities() []string { return f.caps }
func (f *fakeWorker) IdentityPrompt() string { return "fake" }
func (f *fakeWorker) Run(ctx context.Context, task *contracts.WorkerTask, rc *contracts.RunContext) (*contracts.WorkerResult, error) {
	return &contracts.WorkerResult{Success: true, Output: map[string]any{}}, nil
}

func TestResolveByCapability(t *testing.T) {
	r := New()
	r.Register(&fakeWorker{name: "w1", role: contracts.RoleResearcher, caps: []string{"context.retrieve"}})

	w, err := r.ResolveByCapability("context.retrieve")
	require.NoError(t, err)
	assert.Equal(t, "w1", w.Name())

	_, err = r.ResolveByCapability("missing.capability")
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestResolveByRole(t *testing.T) {
	r := New()
	r.Register(&fakeWorker{name: "w1", role: contracts.RoleVerifier, caps: []string{"grounding.verify"}})

	w, err := r.ResolveByRole(contracts.RoleVerifier)
	require.NoError(t, err)
	assert.Equal(t, "w1", w.Name())

	_, err = r.ResolveByRole(contracts.RoleAggregator)
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestRegisterLastWins(t *testing.T) {
	r := New()
	r.Register(&fakeWorker{name: "old", role: contracts.RoleResearcher, caps: []string{"context.retrieve"}})
	r.Register(&fakeWorker{name: "new", role: contracts.RoleResearcher, caps: []string{"context.retrieve"}})

	w, err := r.ResolveByCapability("context.retrieve")
	require.NoError(t, err)
	assert.Equal(t, "new", w.Name())

	w, err = r.ResolveByRole(contracts.RoleResearcher)
	require.NoError(t, err)
	assert.Equal(t, "new", w.Name())
}

func TestRouterCapabilityFirst(t *testing.T) {
	r := New()
	r.Register(&fakeWorker{name: "specialist", role: contracts.RoleToolExecutor, caps: []string{"tool.fetch"}})
	r.Register(&fakeWorker{name: "generalist", role: contracts.RoleSynthesizer, caps: []string{"response.compose"}})
	router := NewRouter(r)

	// Capability match wins, even when the role points elsewhere.
	w, err := router.Resolve(contracts.RoleSynthesizer, "tool.fetch")
	require.NoError(t, err)
	assert.Equal(t, "specialist", w.Name())

	// Unknown capability falls back to the role index.
	w, err = router.Resolve(contracts.RoleSynthesizer, "unknown.capability")
	require.NoError(t, err)
	assert.Equal(t, "generalist", w.Name())

	// Both misses propagate ErrWorkerNotFound.
	_, err = router.Resolve(contracts.RoleAggregator, "unknown.capability")
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestSnapshot(t *testing.T) {
	r := New()
	r.Register(&fakeWorker{name: "zz", role: contracts.RoleVerifier, caps: []string{"grounding.verify"}})
	r.Register(&fakeWorker{name: "aa", role: contracts.RoleResearcher, caps: []string{"context.retrieve", "research.reflect"}})

	snap := r.Snapshot()
	assert.Equal(t, []string{"aa", "zz"}, snap.Workers)
	assert.Equal(t, "aa", snap.Capabilities["context.retrieve"])
	assert.Equal(t, "aa", snap.Capabilities["research.reflect"])
	assert.Equal(t, "zz", snap.Roles[string(contracts.RoleVerifier)])
}
