package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlans_BuiltInOnly(t *testing.T) {
	plans := LoadPlans("")
	require.Contains(t, plans, DefaultPlanName)
	assert.Len(t, plans, 1)
}

func TestLoadPlans_MissingDirFallsBack(t *testing.T) {
	plans := LoadPlans("/does/not/exist")
	assert.Contains(t, plans, DefaultPlanName)
}

func TestLoadPlans_MergesFilePlans(t *testing.T) {
	dir := t.TempDir()
	plan := `
name: quick
steps:
  - name: prices
    tool: market.prices
    input:
      symbols: "$symbols"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick.yaml"), []byte(plan), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("steps: {"), 0o644))

	plans := LoadPlans(dir)
	assert.Contains(t, plans, DefaultPlanName)
	require.Contains(t, plans, "quick")
	assert.Len(t, plans["quick"].Steps, 1)
	assert.Len(t, plans, 2)
}

func TestLoadPlans_FileOverridesBuiltIn(t *testing.T) {
	dir := t.TempDir()
	plan := `
name: advisory
steps:
  - name: prices
    tool: market.prices
    input:
      symbols: "$symbols"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "advisory.yaml"), []byte(plan), 0o644))

	plans := LoadPlans(dir)
	require.Contains(t, plans, DefaultPlanName)
	assert.Len(t, plans[DefaultPlanName].Steps, 1)
}
