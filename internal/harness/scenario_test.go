package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/chess_moves.yaml")
	require.NoError(t, err)

	assert.Equal(t, "chess_moves", scenario.Name)
	assert.Len(t, scenario.Templates, 2)
	assert.Equal(t, TypeSpec{Pattern: "[a-h][1-8]"}, scenario.Types["square"])
	require.Len(t, scenario.Steps, 3)
	assert.Equal(t, "test", scenario.Steps[0].Meta["source"])
	require.NotNil(t, scenario.Steps[0].Expect.OK)
	assert.True(t, *scenario.Steps[0].Expect.OK)
	assert.Len(t, scenario.Assertions, 6)
}

func TestLoadScenario_ResolvesPathsAgainstScenarioDir(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/sources.yaml")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "scenarios", "commands.txt"), scenario.TemplateFile)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "catalog.cue"), scenario.Catalog)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_TypeForms(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: types
templates: ["x [n:count]"]
types:
  square: "[a-h][1-8]"
  count: {pattern: "\\d+", convert: int}
steps:
  - command: x 1
`))
	require.NoError(t, err)
	assert.Equal(t, TypeSpec{Pattern: "[a-h][1-8]"}, scenario.Types["square"])
	assert.Equal(t, TypeSpec{Pattern: `\d+`, ConvertAs: "int"}, scenario.Types["count"])
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown field",
			content: "name: x\ntemplates: [a]\nstep:\n  - command: a\n",
			want:    "field step not found",
		},
		{
			name:    "missing name",
			content: "templates: [a]\nsteps:\n  - command: a\n",
			want:    "name is required",
		},
		{
			name:    "no templates",
			content: "name: x\nsteps:\n  - command: a\n",
			want:    "at least one of templates",
		},
		{
			name:    "no steps",
			content: "name: x\ntemplates: [a]\n",
			want:    "steps must contain",
		},
		{
			name:    "negative history",
			content: "name: x\ntemplates: [a]\nhistory_size: -1\nsteps:\n  - command: a\n",
			want:    "history_size",
		},
		{
			name:    "type without pattern",
			content: "name: x\ntemplates: [a]\ntypes:\n  t: {convert: int}\nsteps:\n  - command: a\n",
			want:    "types.t: pattern is required",
		},
		{
			name:    "echo and error",
			content: "name: x\ntemplates: [a]\nroutes:\n  - {echo: true, error: boom}\nsteps:\n  - command: a\n",
			want:    "routes[0]",
		},
		{
			name:    "unknown assertion",
			content: "name: x\ntemplates: [a]\nsteps:\n  - command: a\nassertions:\n  - type: final_state\n",
			want:    `unknown assertion type "final_state"`,
		},
		{
			name:    "trace_contains without template",
			content: "name: x\ntemplates: [a]\nsteps:\n  - command: a\nassertions:\n  - type: trace_contains\n",
			want:    "template is required for trace_contains",
		},
		{
			name:    "trace_order without templates",
			content: "name: x\ntemplates: [a]\nsteps:\n  - command: a\nassertions:\n  - type: trace_order\n",
			want:    "templates list is required",
		},
		{
			name:    "metric without name",
			content: "name: x\ntemplates: [a]\nsteps:\n  - command: a\nassertions:\n  - type: metric\n    count: 1\n",
			want:    "metric is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
