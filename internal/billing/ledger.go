package billing

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/flock"
	"github.com/mrz1836/overseer/internal/fsutil"
)

// Anchor is the persisted start of the special-day cycle.
type Anchor struct {
	StartDate string    `json:"start_date"`
	CreatedAt time.Time `json:"created_at"`
}

// UpdateFunc mutates a ledger day in place. exists is false when the day has
// no record yet and day is the zero value.
type UpdateFunc func(day *domain.LedgerDay, exists bool) error

// Ledger persists one LedgerDay per calendar date.
type Ledger interface {
	// Get returns the record for date. found is false when none exists.
	Get(ctx context.Context, date string) (day domain.LedgerDay, found bool, err error)

	// Update applies fn to the record for date and persists the result as one
	// atomic read-modify-write.
	Update(ctx context.Context, date string, fn UpdateFunc) (domain.LedgerDay, error)

	// Anchor returns the cycle anchor, creating it from now on first use.
	Anchor(ctx context.Context, now time.Time) (Anchor, error)

	// Days returns every stored record in date order.
	Days(ctx context.Context) ([]domain.LedgerDay, error)
}

// FileLedger stores records as billing/<YYYY-MM-DD>.json plus billing/anchor.json.
// Every read-modify-write holds a cross-process file lock and replaces the
// file atomically, so a crash never leaves a partial record.
type FileLedger struct {
	dir         string
	lockTimeout time.Duration
}

// NewFileLedger returns a ledger rooted at stateDir/billing.
func NewFileLedger(stateDir string, lockTimeout time.Duration) *FileLedger {
	return &FileLedger{
		dir:         filepath.Join(stateDir, constants.BillingDir),
		lockTimeout: lockTimeout,
	}
}

// Dir returns the ledger directory.
func (l *FileLedger) Dir() string {
	return l.dir
}

func (l *FileLedger) dayPath(date string) string {
	return filepath.Join(l.dir, date+".json")
}

func (l *FileLedger) lockPath() string {
	return filepath.Join(l.dir, "ledger"+constants.LockFileSuffix)
}

// Get reads the record for date.
func (l *FileLedger) Get(ctx context.Context, date string) (domain.LedgerDay, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerDay{}, false, err
	}
	var day domain.LedgerDay
	found, err := fsutil.ReadJSON(l.dayPath(date), &day)
	if err != nil {
		return domain.LedgerDay{}, false, overseererrors.Wrapf(err, "read ledger day %s", date)
	}
	return day, found, nil
}

// Update performs a locked read-modify-write of the record for date.
func (l *FileLedger) Update(ctx context.Context, date string, fn UpdateFunc) (domain.LedgerDay, error) {
	var result domain.LedgerDay
	err := flock.With(ctx, l.lockPath(), l.lockTimeout, func() error {
		day, found, err := l.Get(ctx, date)
		if err != nil {
			return err
		}
		if err := fn(&day, found); err != nil {
			return err
		}
		day.Date = date
		if err := fsutil.WriteJSON(l.dayPath(date), day); err != nil {
			return overseererrors.Wrapf(overseererrors.ErrPersistence, "write ledger day %s: %v", date, err)
		}
		result = day
		return nil
	})
	return result, err
}

// Anchor loads or creates the cycle anchor.
func (l *FileLedger) Anchor(ctx context.Context, now time.Time) (Anchor, error) {
	var anchor Anchor
	path := filepath.Join(l.dir, constants.LedgerAnchorFileName)
	err := flock.With(ctx, l.lockPath(), l.lockTimeout, func() error {
		found, err := fsutil.ReadJSON(path, &anchor)
		if err != nil {
			return overseererrors.Wrap(err, "read ledger anchor")
		}
		if found && anchor.StartDate != "" {
			return nil
		}
		anchor = Anchor{StartDate: dateKey(now), CreatedAt: now}
		if err := fsutil.WriteJSON(path, anchor); err != nil {
			return overseererrors.Wrapf(overseererrors.ErrPersistence, "write ledger anchor: %v", err)
		}
		return nil
	})
	return anchor, err
}

// Days lists every stored day in date order.
func (l *FileLedger) Days(ctx context.Context) ([]domain.LedgerDay, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, overseererrors.Wrap(err, "list ledger")
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == constants.LedgerAnchorFileName {
			continue
		}
		date := strings.TrimSuffix(name, ".json")
		if _, err := time.Parse(constants.LedgerDateFormat, date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)

	days := make([]domain.LedgerDay, 0, len(dates))
	for _, date := range dates {
		day, found, err := l.Get(ctx, date)
		if err != nil {
			return nil, err
		}
		if found {
			days = append(days, day)
		}
	}
	return days, nil
}

// MemoryLedger is an in-process Ledger for tests and dry runs.
type MemoryLedger struct {
	mu     sync.Mutex
	days   map[string]domain.LedgerDay
	anchor *Anchor
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{days: make(map[string]domain.LedgerDay)}
}

// SetAnchor fixes the cycle anchor.
func (l *MemoryLedger) SetAnchor(startDate string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.anchor = &Anchor{StartDate: startDate}
}

// Get returns the record for date.
func (l *MemoryLedger) Get(_ context.Context, date string) (domain.LedgerDay, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	day, ok := l.days[date]
	return day, ok, nil
}

// Update applies fn to the record for date.
func (l *MemoryLedger) Update(_ context.Context, date string, fn UpdateFunc) (domain.LedgerDay, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	day, ok := l.days[date]
	if err := fn(&day, ok); err != nil {
		return domain.LedgerDay{}, err
	}
	day.Date = date
	l.days[date] = day
	return day, nil
}

// Anchor returns the anchor, creating it from now on first use.
func (l *MemoryLedger) Anchor(_ context.Context, now time.Time) (Anchor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.anchor == nil {
		l.anchor = &Anchor{StartDate: dateKey(now), CreatedAt: now}
	}
	return *l.anchor, nil
}

// Days returns every record in date order.
func (l *MemoryLedger) Days(_ context.Context) ([]domain.LedgerDay, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	days := make([]domain.LedgerDay, 0, len(l.days))
	for _, d := range l.days {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

var (
	_ Ledger = (*FileLedger)(nil)
	_ Ledger = (*MemoryLedger)(nil)
)
