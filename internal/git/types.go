package git

// Status represents the current state of a Git working tree.
type Status struct {
	Staged    []FileChange // Files staged for commit
	Unstaged  []FileChange // Modified but not staged
	Untracked []string     // Untracked files
	Branch    string       // Current branch name
}

// FileChange represents a changed file in the working tree.
type FileChange struct {
	Path    string     // File path relative to repo root
	Status  ChangeType // Type of change (Added, Modified, Deleted, etc.)
	OldPath string     // For renamed files, the original path
}

// ChangeType represents the type of change for a file.
type ChangeType string

// Change type constants for git status.
const (
	ChangeAdded    ChangeType = "A"
	ChangeModified ChangeType = "M"
	ChangeDeleted  ChangeType = "D"
	ChangeRenamed  ChangeType = "R"
)

// IsClean returns true if the working tree has no changes.
func (s *Status) IsClean() bool {
	return len(s.Staged) == 0 && len(s.Unstaged) == 0 && len(s.Untracked) == 0
}

// HasStagedChanges returns true if there are staged changes ready to commit.
func (s *Status) HasStagedChanges() bool {
	return len(s.Staged) > 0
}

// Touches reports whether path appears anywhere in the status.
func (s *Status) Touches(path string) bool {
	for _, c := range s.Staged {
		if c.Path == path {
			return true
		}
	}
	for _, c := range s.Unstaged {
		if c.Path == path {
			return true
		}
	}
	for _, p := range s.Untracked {
		if p == path {
			return true
		}
	}
	return false
}
