package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestYAMLFile(t *testing.T, content string) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0600))
	return filePath
}

func TestLoad(t *testing.T) {
	validYAML := `
name: earthquake_pipeline
schedule: "@daily"
start_date: "2025-10-23"
catchup: false
tags: [portfolio, earthquake, dbt]
steps:
  - id: extract_load
  - id: transform
    after: extract_load
    command: dbt clean && dbt run --profiles-dir .
    dir: earthquake_dbt_project
`

	testCases := []struct {
		name          string
		yamlContent   string
		errorContains string
	}{
		{name: "valid", yamlContent: validYAML},
		{name: "missing name", yamlContent: "schedule: '@daily'\nsteps: [{id: extract_load}, {id: transform, after: extract_load}]", errorContains: "name is required"},
		{name: "bad schedule", yamlContent: "name: x\nschedule: weekly\nsteps: [{id: extract_load}, {id: transform, after: extract_load}]", errorContains: "schedule"},
		{name: "catchup", yamlContent: "name: x\nschedule: '@daily'\ncatchup: true\nsteps: [{id: extract_load}, {id: transform, after: extract_load}]", errorContains: "catchup"},
		{name: "bad start date", yamlContent: "name: x\nschedule: '@daily'\nstart_date: 23/10/2025\nsteps: [{id: extract_load}, {id: transform, after: extract_load}]", errorContains: "start_date"},
		{name: "wrong order", yamlContent: "name: x\nschedule: '@daily'\nsteps: [{id: transform}, {id: extract_load, after: transform}]", errorContains: "steps[0]"},
		{name: "transform not after load", yamlContent: "name: x\nschedule: '@daily'\nsteps: [{id: extract_load}, {id: transform}]", errorContains: "steps[1]"},
		{name: "one step", yamlContent: "name: x\nschedule: '@daily'\nsteps: [{id: extract_load}]", errorContains: "expected 2 steps"},
		{name: "malformed yaml", yamlContent: "name: [", errorContains: "unmarshal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			def, err := Load(createTestYAMLFile(t, tc.yamlContent))
			if tc.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "earthquake_pipeline", def.Name)
			step, ok := def.Step(StepTransform)
			require.True(t, ok)
			assert.Equal(t, "earthquake_dbt_project", step.Dir)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	def := Default()
	require.NoError(t, def.Validate())
	assert.Equal(t, time.Date(2025, 10, 23, 0, 0, 0, 0, time.UTC), def.Start(time.UTC))
}

func TestSchedule_Next(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	testCases := []struct {
		expr string
		at   time.Time
		want time.Time
	}{
		{expr: "@daily", at: time.Date(2025, 10, 23, 13, 30, 0, 0, time.UTC), want: time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)},
		{expr: "@daily", at: time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC), want: time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)},
		{expr: "@daily", at: time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC), want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{expr: "@daily", at: time.Date(2025, 10, 25, 12, 0, 0, 0, madrid), want: time.Date(2025, 10, 26, 0, 0, 0, 0, madrid)},
		{expr: "@hourly", at: time.Date(2025, 10, 23, 13, 30, 0, 0, time.UTC), want: time.Date(2025, 10, 23, 14, 0, 0, 0, time.UTC)},
		{expr: "6h", at: time.Date(2025, 10, 23, 13, 30, 0, 0, time.UTC), want: time.Date(2025, 10, 23, 19, 30, 0, 0, time.UTC)},
	}
	for _, tc := range testCases {
		t.Run(tc.expr+" "+tc.at.String(), func(t *testing.T) {
			s, err := ParseSchedule(tc.expr)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(s.Next(tc.at)), "got %s", s.Next(tc.at))
		})
	}

	for _, bad := range []string{"", "weekly", "-1h", "0s"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}
