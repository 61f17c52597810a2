// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	response string
	err      error
	lastUser string
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _, userPrompt string) (json.RawMessage, error) {
	f.lastUser = userPrompt
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func TestGenerateParsesChangeSet(t *testing.T) {
	gen := &fakeGenerator{response: `{
		"files": [{"path": "app/models.py", "content": "class User: pass"}],
		"tests": [{"path": "tests/test_models.py", "content": "def test_user(): pass"}],
		"explanation": "Added User model"
	}`}

	g := New(gen)
	cs, err := g.Generate(context.Background(), "Add a User model", "fields: name, email", "Django project", "# Demo")
	require.NoError(t, err)

	require.Len(t, cs.Files, 1)
	assert.Equal(t, "app/models.py", cs.Files[0].Path)
	require.Len(t, cs.Tests, 1)
	assert.Equal(t, "Added User model", cs.Explanation)
	assert.Equal(t, []string{"app/models.py", "tests/test_models.py"}, cs.Paths())

	assert.Contains(t, gen.lastUser, "Add a User model")
	assert.Contains(t, gen.lastUser, "fields: name, email")
	assert.Contains(t, gen.lastUser, "Django project")
}

func TestGenerateErrorsOnTransportFailure(t *testing.T) {
	g := New(&fakeGenerator{err: errors.New("timeout")})

	_, err := g.Generate(context.Background(), "task", "", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task")
}

func TestGenerateErrorsOnEmptyChangeSet(t *testing.T) {
	g := New(&fakeGenerator{response: `{"files": [], "tests": [], "explanation": "nothing"}`})

	_, err := g.Generate(context.Background(), "task", "", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty change set")
}

func TestGenerateDropsUnsafePaths(t *testing.T) {
	gen := &fakeGenerator{response: `{
		"files": [
			{"path": "/etc/passwd", "content": "x"},
			{"path": "../escape.py", "content": "x"},
			{"path": "", "content": "x"},
			{"path": "ok/file.py", "content": "x"}
		],
		"tests": [{"path": "tests\\win.py", "content": "x"}]
	}`}

	g := New(gen)
	cs, err := g.Generate(context.Background(), "task", "", "", "")
	require.NoError(t, err)

	require.Len(t, cs.Files, 1)
	assert.Equal(t, "ok/file.py", cs.Files[0].Path)
	require.Len(t, cs.Tests, 1)
	assert.Equal(t, "tests/win.py", cs.Tests[0].Path)
}
