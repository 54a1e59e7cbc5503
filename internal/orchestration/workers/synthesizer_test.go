package workers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

type fakeCompletion struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompletion) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func composeTask(deps map[string]map[string]any, order []string) *contracts.WorkerTask {
	return &contracts.WorkerTask{
		Capability:   "response.compose",
		Query:        "how does the engine work",
		Dependencies: deps,
		DependsOn:    order,
	}
}

func TestSynthesizerComposeDeterministic(t *testing.T) {
	s := NewSynthesizer(nil, zap.NewNop())
	task := composeTask(map[string]map[string]any{
		"sp_research": {
			contracts.KeyText: "evidence one",
			contracts.KeyCitations: []contracts.Citation{
				{Source: "turn_1", Text: "evidence one"},
			},
		},
	}, []string{"sp_research"})

	result, err := s.Run(context.Background(), task, nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	answer, _ := result.Output[contracts.KeyAnswer].(string)
	assert.True(t, strings.HasPrefix(answer, "Question: how does the engine work"))
	assert.Contains(t, answer, "Guidance:")
	assert.Contains(t, answer, "- Evidence 1: evidence one")
	require.Len(t, result.Citations, 1)
}

func TestSynthesizerArchitectureGuidance(t *testing.T) {
	s := NewSynthesizer(nil, zap.NewNop())
	task := composeTask(map[string]map[string]any{
		"dep": {contracts.KeyText: "a fragment"},
	}, []string{"dep"})
	task.Query = "how does the memory system work"

	result, err := s.Run(context.Background(), task, nil)
	require.NoError(t, err)

	answer, _ := result.Output[contracts.KeyAnswer].(string)
	assert.Contains(t, answer, "Key evidence:")
	assert.Contains(t, answer, "long-term memory")
}

func TestSynthesizerComposeWithoutContext(t *testing.T) {
	s := NewSynthesizer(nil, zap.NewNop())
	result, err := s.Run(context.Background(), composeTask(nil, nil), nil)
	require.NoError(t, err)

	answer, _ := result.Output[contracts.KeyAnswer].(string)
	assert.Contains(t, answer, "Question recorded: how does the engine work")
	assert.Contains(t, answer, "treating it as a new question")
}

func TestSynthesizerSummaryCapability(t *testing.T) {
	s := NewSynthesizer(nil, zap.NewNop())
	task := &contracts.WorkerTask{
		Capability: "reasoning.synthesize",
		Query:      "q",
		Dependencies: map[string]map[string]any{
			"a": {contracts.KeyText: "first part"},
			"b": {contracts.KeyText: "second part"},
		},
		DependsOn: []string{"a", "b"},
	}
	result, err := s.Run(context.Background(), task, nil)
	require.NoError(t, err)

	assert.Equal(t, "first part\nsecond part", result.Output[contracts.KeySummary])
}

func TestSynthesizerSummaryWithoutDependencies(t *testing.T) {
	s := NewSynthesizer(nil, zap.NewNop())
	task := &contracts.WorkerTask{Capability: "reasoning.synthesize", Query: "q"}
	result, err := s.Run(context.Background(), task, nil)
	require.NoError(t, err)

	assert.Equal(t, "no dependency results available; continuing to the next step.", result.Output[contracts.KeySummary])
}

func TestSynthesizerDeduplicatesFragments(t *testing.T) {
	s := NewSynthesizer(nil, zap.NewNop())
	task := composeTask(map[string]map[string]any{
		"a": {contracts.KeyText: "the same evidence"},
		"b": {contracts.KeyText: "The same, evidence"},
	}, []string{"a", "b"})

	result, err := s.Run(context.Background(), task, nil)
	require.NoError(t, err)

	answer, _ := result.Output[contracts.KeyAnswer].(string)
	assert.Equal(t, 1, strings.Count(answer, "- Evidence"))
}

func TestSynthesizerUsesCompletionClient(t *testing.T) {
	llm := &fakeCompletion{reply: "a model-composed answer"}
	s := NewSynthesizer(llm, zap.NewNop())
	task := composeTask(map[string]map[string]any{
		"dep": {contracts.KeyText: "some evidence"},
	}, []string{"dep"})

	result, err := s.Run(context.Background(), task, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, "a model-composed answer", result.Output[contracts.KeyAnswer])
}

func TestSynthesizerFallsBackWhenCompletionFails(t *testing.T) {
	llm := &fakeCompletion{err: errors.New("api down")}
	s := NewSynthesizer(llm, zap.NewNop())
	task := composeTask(map[string]map[string]any{
		"dep": {contracts.KeyText: "some evidence"},
	}, []string{"dep"})

	result, err := s.Run(context.Background(), task, nil)
	require.NoError(t, err)

	answer, _ := result.Output[contracts.KeyAnswer].(string)
	assert.Contains(t, answer, "- Evidence 1: some evidence")
}

func TestDedupCitations(t *testing.T) {
	citations := []contracts.Citation{
		{Source: "turn_1", Text: "the same text"},
		{Source: "turn_1", Text: "The same! text"},
		{Source: "turn_2", Text: "the same text"},
	}
	deduped := dedupCitations(citations)
	require.Len(t, deduped, 2)
	assert.Equal(t, "turn_1", deduped[0].Source)
	assert.Equal(t, "turn_2", deduped[1].Source)
}
