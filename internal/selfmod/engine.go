// Package selfmod implements the self-modification engine: it proposes,
// risk-assesses and applies changes to the agent's own source tree with a
// full backup and rollback.
//
// A modification moves through Analyzing, Assessed and then either Rejected
// or Applying, Verifying and finally Committed or RolledBack. Analysis is
// read-only. Every file the plan touches is snapshotted before the first
// write, and a failed test run restores each one byte for byte. One record
// per attempt is appended to the audit log, rejections included.
//
// An exclusive cross-process lock is held for the whole of Run, so two
// modifications never overlap and the scheduler never executes commands
// against a half-patched tree. Applied changes take effect the next time the
// process starts; the running loop is never hot-swapped.
package selfmod

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/billing"
	"github.com/mrz1836/overseer/internal/clock"
	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/flock"
	"github.com/mrz1836/overseer/internal/fsutil"
	"github.com/mrz1836/overseer/internal/logging"
)

// maxTestOutputRunes caps the test output kept on an audit record.
const maxTestOutputRunes = 4000

// sourceFilePerm is the mode of files a plan creates.
const sourceFilePerm os.FileMode = 0o644

// Budget admits and records metered patch generation calls.
type Budget interface {
	Admit(ctx context.Context, estimate float64) (billing.Decision, error)
	Record(ctx context.Context, c billing.Charge) error
	Cost(model string, inputTokens, outputTokens int) float64
}

// TestRunner runs the verification suite.
type TestRunner interface {
	RunTests(ctx context.Context, dir string, argv []string, timeout time.Duration) domain.CommandResult
}

// Checkpointer records a committed change in version control.
type Checkpointer interface {
	Checkpoint(ctx context.Context, id, summary string, paths []string) (string, error)
}

// Config holds the engine's settings.
type Config struct {
	SourceRoot    string
	StateDir      string
	TestCommand   []string
	TestTimeout   time.Duration
	Gather        GatherOptions
	PatchEstimate domain.Usage
}

// Result is the outcome of one attempt.
type Result struct {
	Plan        domain.ModificationPlan
	Record      domain.ModificationRecord
	Transitions []Transition
}

// Applied reports whether the plan was committed.
func (r Result) Applied() bool {
	return r.Record.State == domain.ModCommitted
}

// Engine is the self-modification engine.
type Engine struct {
	cfg        Config
	root       string
	generator  PatchGenerator
	assessor   *Assessor
	tests      TestRunner
	budget     Budget
	checkpoint Checkpointer
	backups    *BackupStore
	audit      *AuditLog
	clock      clock.Clock
	logger     zerolog.Logger

	lockPath   string
	markerPath string
	write      writeFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithBudget admits and records patch generation through b.
func WithBudget(b Budget) Option {
	return func(e *Engine) { e.budget = b }
}

// WithCheckpointer commits each applied change.
func WithCheckpointer(c Checkpointer) Option {
	return func(e *Engine) { e.checkpoint = c }
}

// WithClock sets the clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = clock.OrReal(c) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine.
func New(cfg Config, generator PatchGenerator, assessor *Assessor, tests TestRunner, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(cfg.SourceRoot) == "" {
		return nil, overseererrors.Wrap(overseererrors.ErrEmptyValue, "source root")
	}
	if strings.TrimSpace(cfg.StateDir) == "" {
		return nil, overseererrors.Wrap(overseererrors.ErrEmptyValue, "state directory")
	}
	if generator == nil || assessor == nil || tests == nil {
		return nil, overseererrors.Wrap(overseererrors.ErrInvalidArgument, "patch generator, assessor and test runner are required")
	}
	root, err := filepath.Abs(cfg.SourceRoot)
	if err != nil {
		return nil, overseererrors.Wrapf(err, "resolve source root %s", cfg.SourceRoot)
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = constants.DefaultTestTimeout
	}

	dir := filepath.Join(cfg.StateDir, constants.SelfModDir)
	e := &Engine{
		cfg:        cfg,
		root:       root,
		generator:  generator,
		assessor:   assessor,
		tests:      tests,
		audit:      NewAuditLog(filepath.Join(dir, constants.AuditLogFileName)),
		clock:      clock.RealClock{},
		logger:     zerolog.Nop(),
		lockPath:   filepath.Join(dir, constants.ModifyLockFileName),
		markerPath: filepath.Join(dir, constants.InflightFileName),
		write:      fsutil.AtomicWrite,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.backups = NewBackupStore(filepath.Join(dir, constants.BackupsDir), e.clock)
	return e, nil
}

// Root returns the absolute source root.
func (e *Engine) Root() string {
	return e.root
}

// Audit returns the audit log.
func (e *Engine) Audit() *AuditLog {
	return e.audit
}

// Backups returns the backup store.
func (e *Engine) Backups() *BackupStore {
	return e.backups
}

// Analyze produces an assessed plan without touching the source tree.
func (e *Engine) Analyze(ctx context.Context, req Request) (domain.ModificationPlan, error) {
	return e.analyze(ctx, req)
}

// Run analyzes req and, when policy and the assessed risk allow it, applies,
// verifies and commits the plan. A plan that is not applied is returned for
// inspection with a Rejected record. The returned error classifies a failed
// attempt: ErrModificationRiskTooHigh, ErrBackupFailure, ErrTestFailure,
// ErrBudgetExceeded or ErrPlannerFailure. ErrModificationInProgress means
// another Run holds the lock and nothing was attempted.
func (e *Engine) Run(ctx context.Context, req Request, policy Policy) (Result, error) {
	lock := flock.New(e.lockPath, 0)
	ok, err := lock.TryAcquire()
	if err != nil {
		return Result{}, overseererrors.Wrap(err, "acquire modification lock")
	}
	if !ok {
		return Result{}, overseererrors.ErrModificationInProgress
	}
	defer func() { _ = lock.Release() }()

	return e.run(ctx, req, policy)
}

func (e *Engine) run(ctx context.Context, req Request, policy Policy) (Result, error) {
	m := newMachine(e.clock.Now)
	res := Result{}

	plan, err := e.analyze(ctx, req)
	res.Plan = plan
	if err != nil {
		_ = m.advance(domain.ModAborted)
		return e.finish(ctx, &res, m, nil, fmt.Sprintf("analysis failed: %v", err), err)
	}
	if err := m.advance(domain.ModAssessed); err != nil {
		return e.finish(ctx, &res, m, nil, err.Error(), err)
	}

	if reason, cause := gate(plan, policy); reason != "" {
		if err := m.advance(domain.ModRejected); err != nil {
			return e.finish(ctx, &res, m, nil, err.Error(), err)
		}
		return e.finish(ctx, &res, m, nil, reason, cause)
	}

	if err := m.startApplying(plan.Risk.Level); err != nil {
		return e.finish(ctx, &res, m, nil, err.Error(), err)
	}

	backup, err := e.backups.Create(ctx, e.root, plan.Paths())
	if err != nil {
		_ = m.advance(domain.ModAborted)
		return e.finish(ctx, &res, m, nil, fmt.Sprintf("backup failed, nothing was modified: %v", err), err)
	}

	marker := inflightMarker{
		ModificationID: plan.ID,
		BackupID:       backup.ID,
		Summary:        plan.Summary,
		Files:          plan.Paths(),
		StartedAt:      e.clock.Now(),
		PID:            os.Getpid(),
	}
	if err := writeMarker(e.markerPath, marker); err != nil {
		_ = m.advance(domain.ModAborted)
		return e.finish(ctx, &res, m, &backup, fmt.Sprintf("nothing was modified: %v", err), err)
	}

	if err := e.apply(plan, backup); err != nil {
		reason := fmt.Sprintf("apply failed and was rolled back: %v", err)
		rbErr := e.rollback(backup)
		_ = m.advance(domain.ModRolledBack)
		if rbErr != nil {
			reason = fmt.Sprintf("apply failed (%v) and rollback failed: %v", err, rbErr)
		}
		return e.finish(ctx, &res, m, &backup, reason, errors.Join(overseererrors.Wrap(overseererrors.ErrPersistence, err.Error()), rbErr))
	}

	if err := m.advance(domain.ModVerifying); err != nil {
		return e.finish(ctx, &res, m, &backup, err.Error(), err)
	}
	verification := e.verify(ctx)
	res.Record.TestOutput = testOutput(verification)
	if !verification.Success {
		reason := fmt.Sprintf("verification failed, changes rolled back: %s", verification.Error)
		rbErr := e.rollback(backup)
		_ = m.advance(domain.ModRolledBack)
		cause := overseererrors.Wrap(overseererrors.ErrTestFailure, verification.Error)
		if rbErr != nil {
			reason = fmt.Sprintf("verification failed (%s) and rollback failed: %v", verification.Error, rbErr)
			cause = errors.Join(cause, rbErr)
		}
		return e.finish(ctx, &res, m, &backup, reason, cause)
	}

	_ = m.advance(domain.ModCommitted)
	reason := "verified and committed"
	if e.checkpoint != nil {
		rev, err := e.checkpoint.Checkpoint(ctx, plan.ID, plan.Summary, plan.Paths())
		if err != nil {
			e.logger.Warn().Err(err).Str("modification_id", plan.ID).Msg("version-control checkpoint failed")
			reason = fmt.Sprintf("verified and committed; checkpoint failed: %v", err)
		}
		res.Record.Checkpoint = rev
	}
	if err := clearMarker(e.markerPath); err != nil {
		e.logger.Warn().Err(err).Msg("failed to clear in-flight marker")
	}
	return e.finish(ctx, &res, m, &backup, reason, nil)
}

// gate decides whether an assessed plan stops at Assessed. It returns an
// empty reason when the plan may be applied.
func gate(plan domain.ModificationPlan, policy Policy) (string, error) {
	switch {
	case plan.Risk.Level.Above(domain.RiskMedium):
		return "high risk, not applied: " + plan.Risk.Rationale,
			overseererrors.Wrap(overseererrors.ErrModificationRiskTooHigh, plan.Risk.Rationale)
	case len(plan.Files) == 0:
		return "no changes proposed", nil
	case !policy.AutoApply:
		return "automatic apply not requested; plan kept for review", nil
	case plan.Risk.Level == domain.RiskMedium && !policy.AllowMedium:
		return "medium risk requires explicit opt-in; plan kept for review", nil
	default:
		return "", nil
	}
}

// apply writes every patched file. Backups already exist for all of them.
func (e *Engine) apply(plan domain.ModificationPlan, backup Backup) error {
	modes := make(map[string]os.FileMode, len(backup.Snapshots))
	for _, s := range backup.Snapshots {
		if s.Existed {
			modes[s.SourcePath] = os.FileMode(s.Mode)
		}
	}

	for _, f := range plan.Files {
		abs, _, err := resolveInRoot(e.root, f.Path)
		if err != nil {
			return err
		}
		mode, ok := modes[f.Path]
		if !ok || mode == 0 {
			mode = sourceFilePerm
		}
		if err := e.write(abs, []byte(f.Patched), mode); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
		e.logger.Debug().Str("file", f.Path).Msg("patched")
	}
	return nil
}

func (e *Engine) verify(ctx context.Context) domain.CommandResult {
	if len(e.cfg.TestCommand) == 0 {
		return domain.CommandResult{
			Success:  false,
			ExitCode: domain.ExitCodeUnavailable,
			Kind:     overseererrors.KindTestFailure,
			Error:    "no test command configured",
		}
	}
	return e.tests.RunTests(ctx, e.root, e.cfg.TestCommand, e.cfg.TestTimeout)
}

// rollback restores backup and clears the in-flight marker once the tree is
// whole again.
func (e *Engine) rollback(backup Backup) error {
	if err := e.backups.Restore(backup); err != nil {
		e.logger.Error().Err(err).Str("backup_id", backup.ID).Msg("rollback incomplete, in-flight marker kept for recovery")
		return overseererrors.Wrapf(overseererrors.ErrBackupFailure, "restore backup %s: %v", backup.ID, err)
	}
	if err := clearMarker(e.markerPath); err != nil {
		e.logger.Warn().Err(err).Msg("failed to clear in-flight marker")
	}
	return nil
}

// finish fills in the audit record, appends it and returns the result.
func (e *Engine) finish(ctx context.Context, res *Result, m *machine, backup *Backup, reason string, cause error) (Result, error) {
	rec := res.Record
	rec.ID = res.Plan.ID
	rec.Timestamp = e.clock.Now()
	rec.Summary = res.Plan.Summary
	rec.RiskLevel = res.Plan.Risk.Level
	rec.Files = res.Plan.Paths()
	rec.State = m.State()
	rec.Success = m.State() == domain.ModCommitted
	rec.Reason = reason
	if backup != nil {
		rec.BackupID = backup.ID
		rec.BackupPaths = backup.SnapshotPaths()
	}
	res.Record = rec
	res.Transitions = m.history

	log := e.logger.With().
		Str("modification_id", rec.ID).
		Str("state", string(rec.State)).
		Str("risk", string(rec.RiskLevel)).
		Int("files", len(rec.Files)).
		Logger()
	if rec.Success {
		log.Info().Msg("modification committed; takes effect on next start")
	} else {
		log.Warn().Str("reason", reason).Msg("modification not applied")
	}

	// The audit append must survive a canceled caller.
	if err := e.audit.Append(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Msg("failed to append audit record")
		if cause == nil {
			cause = err
		}
	}
	return *res, cause
}

// Busy reports whether another caller holds the modification lock, which
// means a plan may be mid-apply against the source tree.
func (e *Engine) Busy() bool {
	lock := flock.New(e.lockPath, 0)
	ok, err := lock.TryAcquire()
	if err != nil || !ok {
		return true
	}
	_ = lock.Release()
	return false
}

// Recover restores the tree after a crash between backup and verification.
// It reports whether a restore happened. A marker left by a modification the
// audit log already records as committed is cleared without a restore. When another process holds the
// modification lock the in-flight marker belongs to it and nothing is done.
func (e *Engine) Recover(ctx context.Context) (bool, error) {
	lock := flock.New(e.lockPath, 0)
	ok, err := lock.TryAcquire()
	if err != nil {
		return false, overseererrors.Wrap(err, "acquire modification lock")
	}
	if !ok {
		return false, nil
	}
	defer func() { _ = lock.Release() }()

	marker, found, err := readMarker(e.markerPath)
	if err != nil {
		return false, overseererrors.Wrap(err, "read in-flight marker")
	}
	if !found {
		return false, nil
	}
	// The process may have died after writing the committed record but
	// before removing the marker.
	if prior, err := e.audit.Find(marker.ModificationID); err == nil && prior.State == domain.ModCommitted {
		e.logger.Info().
			Str("modification_id", marker.ModificationID).
			Msg("in-flight marker belongs to a committed modification, clearing it")
		return false, clearMarker(e.markerPath)
	}

	backup, err := e.backups.Load(marker.BackupID)
	if err != nil {
		return false, fmt.Errorf("%w: load backup %s for interrupted modification %s: %w",
			overseererrors.ErrBackupFailure, marker.BackupID, marker.ModificationID, err)
	}
	if err := e.rollback(backup); err != nil {
		return false, err
	}

	rec := domain.ModificationRecord{
		ID:          marker.ModificationID,
		Timestamp:   e.clock.Now(),
		Summary:     marker.Summary,
		Files:       marker.Files,
		BackupID:    backup.ID,
		BackupPaths: backup.SnapshotPaths(),
		State:       domain.ModRolledBack,
		Success:     false,
		Reason:      fmt.Sprintf("restored from backup after an interrupted apply started at %s", marker.StartedAt.Format(time.RFC3339)),
	}
	e.logger.Warn().
		Str("modification_id", rec.ID).
		Str("backup_id", backup.ID).
		Msg("recovered interrupted modification")
	if err := e.audit.Append(ctx, rec); err != nil {
		return true, err
	}
	return true, nil
}

// PruneBackups removes snapshot sets older than olderThan. The set an
// in-flight modification depends on is never pruned.
func (e *Engine) PruneBackups(ctx context.Context, olderThan time.Duration) (int, error) {
	lock := flock.New(e.lockPath, 0)
	ok, err := lock.TryAcquire()
	if err != nil {
		return 0, overseererrors.Wrap(err, "acquire modification lock")
	}
	if !ok {
		return 0, overseererrors.ErrModificationInProgress
	}
	defer func() { _ = lock.Release() }()

	keep := map[string]bool{}
	if marker, found, err := readMarker(e.markerPath); err == nil && found {
		keep[marker.BackupID] = true
	}
	n, err := e.backups.Prune(ctx, olderThan, keep)
	if n > 0 {
		e.logger.Info().Int("pruned", n).Dur("older_than", olderThan).Msg("pruned modification backups")
	}
	return n, err
}

func testOutput(r domain.CommandResult) string {
	out := strings.TrimSpace(strings.TrimSpace(r.Stdout) + "\n" + strings.TrimSpace(r.Stderr))
	return logging.Truncate(out, maxTestOutputRunes)
}

// newPlanID returns a fresh modification identifier.
func newPlanID() string {
	return uuid.NewString()
}
