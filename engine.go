package ssar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-ssar/pkg/activity"
	"github.com/goliatone/go-ssar/pkg/backup"
)

// Engine runs scan, apply, revert and restore against one host. Session
// baselines are kept per plan name; durable backups go to the configured
// backup store.
type Engine struct {
	host      Host
	cfg       engineConfig
	sessionID string
	scanner   *Scanner
	applier   *Applier
	ledger    *BackupLedger
	emitter   *activity.Emitter

	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

// New builds an engine over host.
func New(host Host, opts ...Option) (*Engine, error) {
	if host == nil {
		return nil, errors.New("ssar: host is required")
	}
	cfg := applyOptions(opts)
	if cfg.store == nil {
		cfg.store = backup.NewMemoryStore()
	}
	e := &Engine{
		host:         host,
		cfg:          cfg,
		sessionID:    uuid.NewString(),
		coordinators: make(map[string]*Coordinator),
	}
	e.scanner = NewScanner(host, cfg.progress, cfg.logger)
	e.ledger = NewBackupLedger(cfg.store, host, cfg.progress, cfg.logger, cfg.now)
	e.applier = NewApplier(host, e.ledger, cfg.progress, cfg.logger)
	e.emitter = e.newEmitter()
	return e, nil
}

// SessionID identifies this engine instance in activity events.
func (e *Engine) SessionID() string { return e.sessionID }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.cfg.logger }

// EvaluatorLogger returns the logger rule predicates should report to.
func (e *Engine) EvaluatorLogger() EvaluatorLogger { return e.cfg.evaluatorLogger }

// Scan computes the candidates of plan without touching the host.
func (e *Engine) Scan(ctx context.Context, plan Plan) (ScanResult, error) {
	result, err := e.scanner.Scan(ctx, plan)
	if err != nil {
		e.cfg.logger.Error("scan failed", "plan", plan.Name, "error", err)
		return result, err
	}
	summary := Summary{
		Operation:     OpScan,
		Plan:          plan.Name,
		Changed:       result.ChangeCount(),
		Skipped:       len(result.Candidates) - result.ChangeCount(),
		NotApplicable: result.NotApplicable,
		Canceled:      result.Canceled,
	}
	logSummary(ctx, e.cfg.logger, summary)
	input := e.operationInput(plan.Name, summary)
	input.Fingerprint = result.Fingerprint
	e.emit(ctx, activity.BuildScanCompletedEvent(input))
	return result, nil
}

// Apply mutates the candidates of result that are marked to change. The
// result must come from a scan of the same plan. When a confirmer is set it
// is asked first; a declined prompt returns ErrDeclined with nothing written.
// Session plans capture their baseline before the first write.
func (e *Engine) Apply(ctx context.Context, plan Plan, result ScanResult) (ApplyReport, error) {
	if err := plan.Validate(); err != nil {
		return ApplyReport{}, err
	}
	if result.Plan != plan.Name {
		return ApplyReport{}, fmt.Errorf("ssar: scan result of plan %q applied with plan %q", result.Plan, plan.Name)
	}
	changes := result.ChangeCount()
	if err := e.confirm(ctx, OpApply, plan.Name, fmt.Sprintf("Apply %s to %d object(s)?", plan.Attribute, changes), changes); err != nil {
		return ApplyReport{Plan: plan.Name, Total: len(result.Candidates)}, err
	}

	if plan.Identity == IdentityVolatile && changes > 0 {
		set, created, err := e.coordinator(plan.Name).CaptureIfAbsent(ctx, plan)
		if err != nil {
			return ApplyReport{Plan: plan.Name}, err
		}
		if created {
			e.cfg.logger.Info("baseline captured", "plan", plan.Name, "snapshot", set.ID, "entries", set.Len())
			input := e.operationInput(plan.Name, Summary{})
			input.SnapshotID = set.ID
			input.Entries = set.Len()
			e.emit(ctx, activity.BuildBaselineCapturedEvent(input))
		}
	}

	report, err := e.applier.Apply(ctx, plan, result.Candidates)
	if err != nil {
		return report, err
	}
	summary := report.Summary()
	logSummary(ctx, e.cfg.logger, summary)
	e.emit(ctx, activity.BuildApplyCompletedEvent(e.operationInput(plan.Name, summary)))
	return report, nil
}

// Revert writes the session baseline of plan back. It returns ErrNoBaseline
// when nothing was captured.
func (e *Engine) Revert(ctx context.Context, plan Plan) (RestoreReport, error) {
	if plan.Identity != IdentityVolatile {
		return RestoreReport{Plan: plan.Name}, fmt.Errorf("%w: plan %q has no session baseline, use restore", ErrIdentityMismatch, plan.Name)
	}
	report, err := e.coordinator(plan.Name).Revert(ctx)
	if err != nil {
		return report, err
	}
	summary := report.Summary(OpRevert)
	logSummary(ctx, e.cfg.logger, summary)
	e.emit(ctx, activity.BuildRevertCompletedEvent(e.operationInput(plan.Name, summary)))
	return report, nil
}

// ForgetBaseline drops the session baseline of plan. It reports whether one
// existed.
func (e *Engine) ForgetBaseline(ctx context.Context, plan Plan) bool {
	c := e.coordinator(plan.Name)
	set, _ := c.Baseline()
	if !c.ForgetBaseline() {
		return false
	}
	e.cfg.logger.Info("baseline forgotten", "plan", plan.Name, "snapshot", set.ID)
	input := e.operationInput(plan.Name, Summary{})
	input.SnapshotID = set.ID
	input.Entries = set.Len()
	e.emit(ctx, activity.BuildBaselineForgottenEvent(input))
	return true
}

// State reports whether plan has a session baseline.
func (e *Engine) State(plan Plan) State {
	return e.coordinator(plan.Name).State()
}

// Baseline returns a copy of the session baseline of plan.
func (e *Engine) Baseline(plan Plan) (SnapshotSet, bool) {
	return e.coordinator(plan.Name).Baseline()
}

// Observe compares the live values of plan with its session baseline.
func (e *Engine) Observe(ctx context.Context, plan Plan) (Observation, error) {
	return e.coordinator(plan.Name).Observe(ctx)
}

// Restore writes every durable backup of plan back to the host. The
// confirmer, when set, is asked first.
func (e *Engine) Restore(ctx context.Context, plan Plan) (RestoreReport, error) {
	if err := durableOnly(plan); err != nil {
		return RestoreReport{Plan: plan.Name}, err
	}
	if e.cfg.confirmer != nil {
		entries, err := e.ledger.Entries(ctx, plan.Name)
		if err != nil {
			return RestoreReport{Plan: plan.Name}, err
		}
		msg := fmt.Sprintf("Restore the original %s of %d object(s)?", plan.Attribute, len(entries))
		if err := e.confirm(ctx, OpRestore, plan.Name, msg, len(entries)); err != nil {
			return RestoreReport{Plan: plan.Name}, err
		}
	}
	report, err := e.ledger.Restore(ctx, plan.Name)
	if err != nil {
		return report, err
	}
	summary := report.Summary(OpRestore)
	logSummary(ctx, e.cfg.logger, summary)
	e.emit(ctx, activity.BuildRestoreCompletedEvent(e.operationInput(plan.Name, summary)))
	return report, nil
}

// Backups lists the durable backups recorded for plan.
func (e *Engine) Backups(ctx context.Context, plan Plan) ([]BackupEntry, error) {
	if err := durableOnly(plan); err != nil {
		return nil, err
	}
	return e.ledger.Entries(ctx, plan.Name)
}

// ClearBackups forgets the durable backups of plan. The next apply records
// the values live at that point as the new originals. The confirmer, when
// set, is asked first.
func (e *Engine) ClearBackups(ctx context.Context, plan Plan) (int, error) {
	if err := durableOnly(plan); err != nil {
		return 0, err
	}
	if e.cfg.confirmer != nil {
		entries, err := e.ledger.Entries(ctx, plan.Name)
		if err != nil {
			return 0, err
		}
		msg := fmt.Sprintf("Forget %d recorded original(s)? They cannot be restored afterwards.", len(entries))
		if err := e.confirm(ctx, OpClear, plan.Name, msg, len(entries)); err != nil {
			return 0, err
		}
	}
	n, err := e.ledger.Clear(ctx, plan.Name)
	if err != nil {
		return 0, err
	}
	e.cfg.logger.Info("backups cleared", "plan", plan.Name, "entries", n)
	input := e.operationInput(plan.Name, Summary{})
	input.Entries = n
	e.emit(ctx, activity.BuildBackupClearedEvent(input))
	return n, nil
}

// Close releases the backup store.
func (e *Engine) Close() error {
	return e.cfg.store.Close()
}

func (e *Engine) coordinator(plan string) *Coordinator {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.coordinators[plan]
	if !ok {
		c = NewCoordinator(e.host, plan, e.cfg.progress, e.cfg.logger, e.cfg.now)
		e.coordinators[plan] = c
	}
	return c
}

// confirm asks the confirmer about an operation touching count objects.
// Nothing is asked when no confirmer is set or count is zero. A declined
// prompt yields ErrDeclined.
func (e *Engine) confirm(ctx context.Context, op, plan, message string, count int) error {
	if e.cfg.confirmer == nil || count == 0 {
		return nil
	}
	ok, err := e.cfg.confirmer.Confirm(ctx, Prompt{Operation: op, Title: plan, Message: message, Count: count})
	if err != nil {
		return fmt.Errorf("ssar: confirm %s %s: %w", op, plan, err)
	}
	if !ok {
		e.cfg.logger.Info("operation declined", "op", op, "plan", plan, "objects", count)
		return ErrDeclined
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, event activity.Event) {
	if err := e.emitter.Emit(context.WithoutCancel(ctx), event); err != nil {
		e.cfg.logger.Warn("activity hook failed", "verb", event.Verb, "plan", event.Plan, "error", err)
	}
}

func durableOnly(plan Plan) error {
	if plan.Identity != IdentityDurable {
		return fmt.Errorf("%w: plan %q keeps no durable backups", ErrIdentityMismatch, plan.Name)
	}
	return nil
}
