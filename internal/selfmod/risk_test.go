package selfmod

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

func planFor(path, original, patched string) domain.ModificationPlan {
	added, removed := changeStats(original, patched)
	return domain.ModificationPlan{Files: []domain.FileChange{{
		Path:         path,
		Original:     original,
		Patched:      patched,
		AddedLines:   len(added),
		RemovedLines: removed,
	}}}
}

func TestAssess_Rules(t *testing.T) {
	a, err := NewAssessor(mustRules(t), nil, 0)
	require.NoError(t, err)

	tests := []struct {
		name  string
		line  string
		level domain.RiskLevel
		rule  string
	}{
		{"plain change", "x := 1", domain.RiskLow, ""},
		{"exec", `cmd := exec.CommandContext(ctx, "sh")`, domain.RiskHigh, "process_exec"},
		{"unsafe", "p := unsafe.Pointer(&x)", domain.RiskHigh, "unsafe_pointer"},
		{"remove all", `os.RemoveAll("/")`, domain.RiskHigh, "remove_all"},
		{"credential", `apiKey := "sk-abcdefghijkl"`, domain.RiskHigh, "credentials"},
		{"bypass", "// skip_budget for now", domain.RiskHigh, "safety_bypass"},
		{"exit", "os.Exit(1)", domain.RiskMedium, "os_exit"},
		{"delete", `os.Remove(path)`, domain.RiskMedium, "file_delete"},
		{"network", `http.Get(url)`, domain.RiskMedium, "network_client"},
		{"nolint", "x := 1 //nolint:gosec", domain.RiskLow, "nolint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Assess(planFor("a.go", "package a\n", "package a\n"+tt.line+"\n"), nil, "")
			assert.Equal(t, tt.level, got.Level)
			if tt.rule == "" {
				assert.Empty(t, got.Findings)
				return
			}
			require.NotEmpty(t, got.Findings)
			assert.Equal(t, tt.rule, got.Findings[0].Rule)
			assert.Equal(t, 2, got.Findings[0].Line)
		})
	}
}

func TestAssess_OnlyAddedLinesCount(t *testing.T) {
	a, err := NewAssessor(mustRules(t), nil, 0)
	require.NoError(t, err)

	original := "package a\nvar _ = exec.Command(\"ls\")\n"
	got := a.Assess(planFor("a.go", original, "package a\n"), nil, "")
	assert.Equal(t, domain.RiskLow, got.Level, "removing a risky line is not risky")
}

func TestAssess_ChangeSizeAndDeclared(t *testing.T) {
	a, err := NewAssessor(mustRules(t), nil, 2)
	require.NoError(t, err)

	got := a.Assess(planFor("a.go", "", "a\nb\nc\n"), nil, "")
	assert.Equal(t, domain.RiskMedium, got.Level)
	assert.Equal(t, RuleChangeSize, got.Findings[0].Rule)

	got = a.Assess(planFor("a.go", "", "a\n"), nil, domain.RiskHigh)
	assert.Equal(t, domain.RiskHigh, got.Level, "declared risk raises the level")

	got = a.Assess(planFor("a.go", "", "os.Exit(1)\n"), nil, domain.RiskLow)
	assert.Equal(t, domain.RiskMedium, got.Level, "declared risk never lowers it")
	assert.Contains(t, got.Rationale, "medium risk")
}

func TestAssess_ProtectedPaths(t *testing.T) {
	a, err := NewAssessor(mustRules(t), []string{"internal/billing/", "./go.mod"}, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.RiskHigh, a.Assess(planFor("internal/billing/guard.go", "", "x\n"), nil, "").Level)
	assert.Equal(t, domain.RiskHigh, a.Assess(planFor("go.mod", "", "x\n"), nil, "").Level)
	assert.Equal(t, domain.RiskLow, a.Assess(planFor("internal/billingx/a.go", "", "x\n"), nil, "").Level)
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.NotEmpty(t, rules)

	dir := t.TempDir()
	custom := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(custom, []byte("rules:\n  - id: todo\n    pattern: TODO\n    level: medium\n    message: adds a todo\n"), 0o600))
	rules, err = LoadRules(custom)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "todo", rules[0].ID)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rules: []\n"), 0o600))
	_, err = LoadRules(empty)
	require.ErrorIs(t, err, overseererrors.ErrEmptyValue)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: [\n"), 0o600))
	_, err = LoadRules(bad)
	require.ErrorIs(t, err, overseererrors.ErrInvalidArgument)
}

func TestNewAssessor_BadPattern(t *testing.T) {
	_, err := NewAssessor([]Rule{{ID: "x", Pattern: "(", Level: "high"}}, nil, 0)
	require.Error(t, err)
}
