// Package goal persists the loop's current goal and the history of goal
// changes.
package goal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/fsutil"
)

// Change is one entry of the goal history.
type Change struct {
	Goal     domain.Goal `json:"goal"`
	Previous string      `json:"previous,omitempty"`
	Sequence int64       `json:"sequence,omitempty"`
	At       time.Time   `json:"at"`
}

// Store keeps goal.json and goal_history.jsonl under a state directory.
type Store struct {
	mu          sync.Mutex
	path        string
	historyPath string
}

// NewStore returns a store rooted at stateDir.
func NewStore(stateDir string) *Store {
	return &Store{
		path:        filepath.Join(stateDir, constants.GoalFileName),
		historyPath: filepath.Join(stateDir, constants.GoalHistoryFileName),
	}
}

// Load returns the persisted goal. found is false when none was saved yet.
func (s *Store) Load(_ context.Context) (g domain.Goal, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err = fsutil.ReadJSON(s.path, &g)
	if err != nil {
		return domain.Goal{}, found, err
	}
	return g, found && !g.IsZero(), nil
}

// LoadOr returns the persisted goal, or fallback marked as the default goal.
// A corrupt goal file also yields the fallback.
func (s *Store) LoadOr(ctx context.Context, fallback string, now time.Time) (domain.Goal, error) {
	g, found, err := s.Load(ctx)
	if found && err == nil {
		return g, nil
	}
	return domain.Goal{Text: strings.TrimSpace(fallback), SetBy: domain.GoalSetByDefault, SetAt: now}, err
}

// Save replaces the current goal and appends the change to the history.
// Saving the goal already in place only rewrites goal.json.
func (s *Store) Save(ctx context.Context, g domain.Goal, sequence int64) error {
	if g.IsZero() {
		return overseererrors.Wrap(overseererrors.ErrEmptyValue, "goal")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var prev domain.Goal
	if _, err := fsutil.ReadJSON(s.path, &prev); err != nil {
		prev = domain.Goal{}
	}
	if err := fsutil.WriteJSON(s.path, g); err != nil {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "save goal: %v", err)
	}
	if prev.Text == g.Text && prev.SetBy == g.SetBy {
		return nil
	}

	change := Change{Goal: g, Previous: prev.Text, Sequence: sequence, At: g.SetAt}
	if err := fsutil.AppendJSONLine(ctx, s.historyPath, change); err != nil {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "append goal history: %v", err)
	}
	return nil
}

// History returns up to the last n goal changes, oldest first.
func (s *Store) History(n int) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changes []Change
	_, err := fsutil.ReadJSONLines(s.historyPath, func(line []byte) error {
		var c Change
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		changes = append(changes, c)
		return nil
	})
	if err != nil {
		return nil, overseererrors.Wrap(err, "read goal history")
	}
	if n > 0 && len(changes) > n {
		changes = changes[len(changes)-n:]
	}
	return changes, nil
}
