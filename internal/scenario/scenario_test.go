package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "ok.yaml", `
name: ok
description: "one contribution"
accounts:
  attacker: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
steps:
  - action: fund
    value: "1"
    expect:
      result: "#0"
`)

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", sc.Name)
	require.Len(t, sc.Steps, 1)
	require.NotNil(t, sc.Steps[0].Expect)
	require.NotNil(t, sc.Steps[0].Expect.Result)
	assert.Equal(t, "#0", *sc.Steps[0].Expect.Result)
	assert.Contains(t, sc.Accounts, "attacker")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown field",
			body: "name: x\ndescription: y\nstep:\n  - action: fund\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			body: "description: y\nsteps:\n  - action: balance\n",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: x\nsteps:\n  - action: balance\n",
			want: "description is required",
		},
		{
			name: "no steps",
			body: "name: x\ndescription: y\n",
			want: "steps list is required",
		},
		{
			name: "unknown action",
			body: "name: x\ndescription: y\nsteps:\n  - action: refund\n",
			want: `unknown action "refund"`,
		},
		{
			name: "fund without value",
			body: "name: x\ndescription: y\nsteps:\n  - action: fund\n",
			want: "fund needs a value",
		},
		{
			name: "amount without account",
			body: "name: x\ndescription: y\nsteps:\n  - action: amount\n",
			want: "amount needs an account",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "bad.yaml", tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDir_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	body := "name: same\ndescription: y\nsteps:\n  - action: balance\n"
	writeScenario(t, dir, "a.yaml", body)
	writeScenario(t, dir, "b.yaml", body)

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario "same" defined in`)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
