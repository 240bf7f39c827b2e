package domain

import (
	"strings"
	"time"
)

// RiskLevel is a coarse rating of how dangerous a proposed change is.
type RiskLevel string

// Risk levels in ascending order.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// rank orders risk levels. Unknown values rank as high so they never pass a gate.
func (l RiskLevel) rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	default:
		return 2
	}
}

// Above reports whether l is strictly riskier than other.
func (l RiskLevel) Above(other RiskLevel) bool {
	return l.rank() > other.rank()
}

// Max returns the riskier of l and other.
func (l RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Above(l) {
		return other
	}
	if l.rank() == 2 {
		return RiskHigh
	}
	return l
}

// ParseRiskLevel converts free text to a RiskLevel. Unrecognized text is high.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "safe":
		return RiskLow
	case "medium", "moderate":
		return RiskMedium
	default:
		return RiskHigh
	}
}

// RiskFinding is one reason contributing to a risk assessment.
type RiskFinding struct {
	Rule    string    `json:"rule"`
	Level   RiskLevel `json:"level"`
	File    string    `json:"file,omitempty"`
	Line    int       `json:"line,omitempty"`
	Message string    `json:"message"`
}

// RiskAssessment is the evaluation attached to a modification plan.
type RiskAssessment struct {
	Level     RiskLevel     `json:"level"`
	Rationale string        `json:"rationale"`
	Findings  []RiskFinding `json:"findings,omitempty"`
}

// RequestVariant distinguishes how the engine gathers its input files.
type RequestVariant string

// Request variants.
const (
	VariantSingleFile RequestVariant = "single_file"
	VariantWholeTree  RequestVariant = "whole_tree"
)

// FileChange is the proposed new content of one file.
type FileChange struct {
	// Path is relative to the source root.
	Path string `json:"path"`

	// Reason is why this file changes.
	Reason string `json:"reason,omitempty"`

	// Original and Patched are full file contents. Original is empty for new files.
	Original string `json:"-"`
	Patched  string `json:"-"`

	// Diff is a unified diff of Original to Patched.
	Diff string `json:"diff"`

	// AddedLines and RemovedLines count the diff's changed lines.
	AddedLines   int `json:"added_lines"`
	RemovedLines int `json:"removed_lines"`
}

// ModificationPlan is a proposed multi-file patch. It is either applied in
// full or discarded.
type ModificationPlan struct {
	ID        string         `json:"id"`
	Variant   RequestVariant `json:"variant"`
	Request   string         `json:"request"`
	Summary   string         `json:"summary"`
	Files     []FileChange   `json:"files"`
	Risk      RiskAssessment `json:"risk"`
	CreatedAt time.Time      `json:"created_at"`
}

// Paths returns the target paths of the plan in order.
func (p ModificationPlan) Paths() []string {
	paths := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// ChangedLines sums added and removed lines across the plan.
func (p ModificationPlan) ChangedLines() int {
	total := 0
	for _, f := range p.Files {
		total += f.AddedLines + f.RemovedLines
	}
	return total
}

// BackupSnapshot is a pre-modification copy of one file.
type BackupSnapshot struct {
	// SourcePath is the path of the original file relative to the source root.
	SourcePath string `json:"source_path"`

	// SnapshotPath is the absolute path of the copy.
	SnapshotPath string `json:"snapshot_path"`

	// Existed is false when the plan creates a new file; rollback removes it.
	Existed bool `json:"existed"`

	// SHA256 is the hex digest of the original content.
	SHA256 string `json:"sha256"`

	// Mode is the original file mode.
	Mode uint32 `json:"mode"`

	CreatedAt time.Time `json:"created_at"`
}

// ModificationState is a state of the self-modification state machine.
type ModificationState string

// Modification states.
const (
	ModAnalyzing  ModificationState = "analyzing"
	ModAssessed   ModificationState = "assessed"
	ModRejected   ModificationState = "rejected"
	ModApplying   ModificationState = "applying"
	ModVerifying  ModificationState = "verifying"
	ModCommitted  ModificationState = "committed"
	ModRolledBack ModificationState = "rolled_back"
	ModAborted    ModificationState = "aborted"
)

// ModificationRecord is the durable audit entry for one attempted modification.
type ModificationRecord struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Summary     string            `json:"summary"`
	RiskLevel   RiskLevel         `json:"risk_level"`
	Files       []string          `json:"files"`
	BackupID    string            `json:"backup_id,omitempty"`
	BackupPaths []string          `json:"backup_paths,omitempty"`
	State       ModificationState `json:"state"`
	Success     bool              `json:"success"`
	Reason      string            `json:"reason,omitempty"`
	TestOutput  string            `json:"test_output,omitempty"`
	Checkpoint  string            `json:"checkpoint,omitempty"`
}
