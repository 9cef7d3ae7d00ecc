package evaluators

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visably/optimo/internal/domain"
)

// scriptedLLM returns a canned reply or error and records the last prompt.
type scriptedLLM struct {
	reply      string
	err        error
	lastPrompt string
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string, _ map[string]any) (string, error) {
	s.lastPrompt = prompt
	return s.reply, s.err
}

func (s *scriptedLLM) GetModel() string { return "scripted-model" }

func newJudge(t *testing.T, client *scriptedLLM) *JudgeEvaluator {
	t.Helper()
	fallback, err := NewHeuristicEvaluator(DefaultHeuristicConfig())
	require.NoError(t, err)
	cfg := DefaultJudgeConfig()
	cfg.RequestsPerSecond = 100
	judge, err := NewJudgeEvaluator(client, fallback, cfg, nil)
	require.NoError(t, err)
	return judge
}

func TestNewJudgeEvaluator_Validation(t *testing.T) {
	fallback, err := NewHeuristicEvaluator(DefaultHeuristicConfig())
	require.NoError(t, err)

	_, err = NewJudgeEvaluator(nil, fallback, DefaultJudgeConfig(), nil)
	assert.Error(t, err)

	_, err = NewJudgeEvaluator(&scriptedLLM{}, nil, DefaultJudgeConfig(), nil)
	assert.Error(t, err)

	bad := DefaultJudgeConfig()
	bad.MaxTokens = 0
	_, err = NewJudgeEvaluator(&scriptedLLM{}, fallback, bad, nil)
	assert.Error(t, err)

	tmplErr := DefaultJudgeConfig()
	tmplErr.JudgePrompt = "unclosed action {{.Response"
	_, err = NewJudgeEvaluator(&scriptedLLM{}, fallback, tmplErr, nil)
	assert.Error(t, err)
}

func TestJudgeEvaluator_ParsesVerdict(t *testing.T) {
	client := &scriptedLLM{
		reply: "Here is my grade:\n```json\n" +
			`{"score": 82, "relevance": 90, "accuracy": 80, "usefulness": 75}` +
			"\n```",
	}
	judge := newJudge(t, client)

	score, err := judge.Evaluate(context.Background(), domain.AgentChat,
		"Add schema markup to the article pages.", "how do I get cited by AI engines?")
	require.NoError(t, err)
	assert.InDelta(t, 82, score.Score, 1e-9)
	assert.InDelta(t, 90, score.Relevance, 1e-9)
	assert.InDelta(t, 80, score.Accuracy, 1e-9)
	assert.InDelta(t, 75, score.Usefulness, 1e-9)

	// The rendered prompt carries the substituted values.
	assert.Contains(t, client.lastPrompt, "chat")
	assert.Contains(t, client.lastPrompt, "schema markup")
}

func TestJudgeEvaluator_FallsBackOnClientError(t *testing.T) {
	client := &scriptedLLM{err: errors.New("provider down")}
	judge := newJudge(t, client)

	score, err := judge.Evaluate(context.Background(), domain.AgentChat,
		"Add schema markup to the article pages for better AI citations.",
		"how do I get cited by AI engines?")
	require.NoError(t, err)
	assert.True(t, score.Valid())
	assert.Greater(t, score.Score, 0.0)
}

func TestJudgeEvaluator_FallsBackOnUnparseableVerdict(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "no json at all", reply: "the response looks fine to me"},
		{name: "malformed json", reply: `{"score": eighty}`},
		{name: "out of range axis", reply: `{"score": 50, "relevance": 120, "accuracy": 50, "usefulness": 50}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := newJudge(t, &scriptedLLM{reply: tt.reply})
			score, err := judge.Evaluate(context.Background(), domain.AgentChat,
				"Add schema markup to the article pages for better AI citations.",
				"how do I get cited by AI engines?")
			require.NoError(t, err)
			assert.True(t, score.Valid())
		})
	}
}
