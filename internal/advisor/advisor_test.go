// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator scripts collaborator responses
type fakeGenerator struct {
	response string
	err      error

	lastSystem string
	lastUser   string
	calls      int
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func TestAdvise(t *testing.T) {
	gen := &fakeGenerator{
		response: `{"solution": "pip install -r requirements.txt", "explanation": "deps missing", "confidence": "high", "needs_human": false}`,
	}
	a := New(gen)

	s := a.Advise(context.Background(), "ModuleNotFoundError: flask", "running tests", "pytest -v", 2)

	assert.Equal(t, "pip install -r requirements.txt", s.Solution)
	assert.Equal(t, ConfidenceHigh, s.Confidence)
	assert.False(t, s.NeedsHuman)

	// The full failure context reaches the collaborator
	assert.Contains(t, gen.lastUser, "ModuleNotFoundError: flask")
	assert.Contains(t, gen.lastUser, "running tests")
	assert.Contains(t, gen.lastUser, "pytest -v")
	assert.Contains(t, gen.lastUser, "Retry count: 2")
}

func TestAdviseFallbacks(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{
			name: "transport failure",
			gen:  &fakeGenerator{err: errors.New("api down")},
		},
		{
			name: "malformed response",
			gen:  &fakeGenerator{response: `["not", "an", "object"]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.gen)
			s := a.Advise(context.Background(), "err", "ctx", "cmd", 0)

			require.True(t, s.NeedsHuman)
			assert.Equal(t, ConfidenceLow, s.Confidence)
			assert.Empty(t, s.Solution)
			assert.NotEmpty(t, s.HumanInstructions)
		})
	}
}

func TestAdviseDefaultsConfidence(t *testing.T) {
	gen := &fakeGenerator{response: `{"solution": "retry"}`}
	a := New(gen)

	s := a.Advise(context.Background(), "err", "ctx", "cmd", 0)
	assert.Equal(t, ConfidenceLow, s.Confidence)
}
