package selfmod

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule is a regex matched against every added line of a plan.
type Rule struct {
	ID      string `yaml:"id"`
	Pattern string `yaml:"pattern"`
	Level   string `yaml:"level"`
	Message string `yaml:"message"`
}

// RulesFile is the YAML schema root.
type RulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Finding rule identifiers produced outside the YAML rules.
const (
	RuleProtectedPath = "protected_path"
	RuleOutsideRoot   = "outside_root"
	RuleChangeSize    = "change_size"
	RuleDeclared      = "declared"
)

// LoadRules returns the built-in rules, or the rules in path when it is set.
// A rules file replaces the built-in set.
func LoadRules(path string) ([]Rule, error) {
	data := defaultRulesYAML
	if path != "" {
		b, err := os.ReadFile(path) //nolint:gosec // G304: operator-configured rules file
		if err != nil {
			return nil, overseererrors.Wrapf(err, "read risk rules %s", path)
		}
		data = b
	}

	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "parse risk rules: %v", err)
	}
	if len(rf.Rules) == 0 {
		return nil, overseererrors.Wrap(overseererrors.ErrEmptyValue, "risk rules")
	}
	return rf.Rules, nil
}

type compiledRule struct {
	rule  Rule
	level domain.RiskLevel
	re    *regexp.Regexp
}

// Assessor rates modification plans.
type Assessor struct {
	rules           []compiledRule
	protected       []string
	maxChangedLines int
}

// NewAssessor compiles rules. protected holds slash-separated path prefixes
// relative to the source root.
func NewAssessor(rules []Rule, protected []string, maxChangedLines int) (*Assessor, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "risk rule %q: %v", r.ID, err)
		}
		compiled = append(compiled, compiledRule{rule: r, level: domain.ParseRiskLevel(r.Level), re: re})
	}

	cleaned := make([]string, 0, len(protected))
	for _, p := range protected {
		p = strings.Trim(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/")
		if p != "" && p != "." {
			cleaned = append(cleaned, p)
		}
	}
	return &Assessor{rules: compiled, protected: cleaned, maxChangedLines: maxChangedLines}, nil
}

// Assess rates plan. extra carries findings made while building the plan,
// such as paths outside the source root. declared is the generator's own
// rating and can only raise the result.
func (a *Assessor) Assess(plan domain.ModificationPlan, extra []domain.RiskFinding, declared domain.RiskLevel) domain.RiskAssessment {
	findings := append([]domain.RiskFinding(nil), extra...)

	for _, f := range plan.Files {
		if p := a.protectedPrefix(f.Path); p != "" {
			findings = append(findings, domain.RiskFinding{
				Rule:    RuleProtectedPath,
				Level:   domain.RiskHigh,
				File:    f.Path,
				Message: fmt.Sprintf("modifies protected path %s", p),
			})
		}
		added, _ := changeStats(f.Original, f.Patched)
		for _, line := range added {
			for _, r := range a.rules {
				if r.re.MatchString(line.Text) {
					findings = append(findings, domain.RiskFinding{
						Rule:    r.rule.ID,
						Level:   r.level,
						File:    f.Path,
						Line:    line.Number,
						Message: r.rule.Message,
					})
				}
			}
		}
	}

	if changed := plan.ChangedLines(); a.maxChangedLines > 0 && changed > a.maxChangedLines {
		findings = append(findings, domain.RiskFinding{
			Rule:    RuleChangeSize,
			Level:   domain.RiskMedium,
			Message: fmt.Sprintf("changes %d lines, above the limit of %d", changed, a.maxChangedLines),
		})
	}

	if declared != "" {
		findings = append(findings, domain.RiskFinding{
			Rule:    RuleDeclared,
			Level:   domain.ParseRiskLevel(string(declared)),
			Message: fmt.Sprintf("generator rated the change %s", declared),
		})
	}

	level := domain.RiskLow
	for _, f := range findings {
		level = level.Max(f.Level)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Level.Above(findings[j].Level)
	})
	return domain.RiskAssessment{Level: level, Rationale: rationale(level, findings), Findings: findings}
}

func (a *Assessor) protectedPrefix(rel string) string {
	rel = strings.Trim(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "/")
	for _, p := range a.protected {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return p
		}
	}
	return ""
}

func rationale(level domain.RiskLevel, findings []domain.RiskFinding) string {
	var reasons []string
	seen := make(map[string]bool)
	for _, f := range findings {
		if f.Level != level || seen[f.Message] {
			continue
		}
		seen[f.Message] = true
		reasons = append(reasons, f.Message)
	}
	if len(reasons) == 0 {
		return fmt.Sprintf("%s risk: no rule matched", level)
	}
	return fmt.Sprintf("%s risk: %s", level, strings.Join(reasons, "; "))
}
