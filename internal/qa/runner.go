package qa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/escape"
	"github.com/pbaille/pathwayqa/internal/report"
)

// State is a step of a check run
type State string

const (
	StateIdle              State = "idle"
	StateLoadingCandidates State = "loading_candidates"
	StateLoadingAttributes State = "loading_attributes"
	StateEscaping          State = "escaping"
	StateChecking          State = "checking"
	StateReporting         State = "reporting"
	StateDone              State = "done"
	StateCancelled         State = "cancelled"
	StateFailed            State = "failed"
)

// Terminal reports whether no further transition can follow
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// EntityFailure records a candidate whose inspection failed in a batch check
type EntityFailure struct {
	Entity *domain.Instance
	Err    error
}

// Result is the outcome of one check run
type Result struct {
	RunID   uuid.UUID
	Check   string
	State   State
	History []State

	// Report is nil when the run was cancelled. A failed run carries the
	// rows found before the failure.
	Report  *report.Report
	Issues  []*domain.Issue
	Escaped []*domain.Instance
	Skipped []EntityFailure
	Checked int

	Started  time.Time
	Duration time.Duration
}

func (r *Result) enter(s State) {
	r.State = s
	r.History = append(r.History, s)
}

// FileName is the default export name of the run's report
func (r *Result) FileName() string {
	return fmt.Sprintf("%s-%s.tsv", r.Check, r.RunID)
}

type finding struct {
	entity *domain.Instance
	issue  *domain.Issue
}

// Runner drives checks through their run states
type Runner struct {
	newContext func() *RunContext
	escape     *escape.Policy
	logger     *zap.Logger
}

// NewRunner creates a runner. newContext is called once per run so that no
// caches are shared between runs; policy may be nil.
func NewRunner(newContext func() *RunContext, policy *escape.Policy, logger *zap.Logger) *Runner {
	if policy == nil {
		policy = escape.New(nil, time.Time{}, nil)
	}
	return &Runner{
		newContext: newContext,
		escape:     policy,
		logger:     logger.Named("qa-runner"),
	}
}

// Run checks candidates, or the check's own selection when candidates is
// nil. Cancellation ends the run in StateCancelled with a nil report and a
// nil error; any other fatal error is returned with a StateFailed result.
func (r *Runner) Run(ctx context.Context, check *Check, candidates []*domain.Instance) (*Result, error) {
	res := &Result{
		RunID:   uuid.New(),
		Check:   check.Name,
		State:   StateIdle,
		History: []State{StateIdle},
		Started: time.Now(),
	}
	logger := r.logger.With(zap.String("check", check.Name), zap.String("run_id", res.RunID.String()))

	var findings []finding
	err := r.run(ctx, check, candidates, res, &findings, logger)
	if err == nil {
		res.enter(StateReporting)
		logger.Debug("State transition", zap.String("state", string(StateReporting)))
	}

	var rep *report.Report
	if err == nil || !isCancellation(ctx, err) {
		var rerr error
		rep, rerr = buildReport(check, findings)
		if err == nil {
			err = rerr
		}
	}
	res.Duration = time.Since(res.Started)

	switch {
	case err == nil:
		res.Report = rep
		res.enter(StateDone)
		logger.Info("Check finished",
			zap.Int("checked", res.Checked),
			zap.Int("issues", len(res.Issues)),
			zap.Int("escaped", len(res.Escaped)),
			zap.Int("skipped", len(res.Skipped)),
			zap.Duration("duration", res.Duration))
	case isCancellation(ctx, err):
		res.Report = nil
		res.enter(StateCancelled)
		logger.Info("Check cancelled", zap.Int("checked", res.Checked))
		err = nil
	default:
		res.Report = rep
		res.enter(StateFailed)
		logger.Error("Check failed", zap.Int("checked", res.Checked), zap.Error(err))
	}

	runsTotal.WithLabelValues(check.Name, string(res.State)).Inc()
	runDuration.WithLabelValues(check.Name).Observe(res.Duration.Seconds())
	issuesTotal.WithLabelValues(check.Name).Add(float64(len(res.Issues)))
	escapedTotal.WithLabelValues(check.Name).Add(float64(len(res.Escaped)))
	return res, err
}

// RunIDs runs check over the instances with the given ids, resolved within
// the run. An unknown id fails the run.
func (r *Runner) RunIDs(ctx context.Context, check *Check, ids []domain.ID) (*Result, error) {
	scoped := *check
	scoped.Candidates = func(ctx context.Context, rc *RunContext) ([]*domain.Instance, error) {
		out := make([]*domain.Instance, 0, len(ids))
		for _, id := range ids {
			inst, err := rc.Client.FetchByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if inst == nil {
				return nil, &domain.MissingEntityError{ID: id}
			}
			out = append(out, inst)
		}
		return out, nil
	}
	return r.Run(ctx, &scoped, nil)
}

func (r *Runner) run(ctx context.Context, check *Check, candidates []*domain.Instance, res *Result, findings *[]finding, logger *zap.Logger) error {
	step := func(s State) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.enter(s)
		logger.Debug("State transition", zap.String("state", string(s)))
		return nil
	}
	rc := r.newContext()

	if err := step(StateLoadingCandidates); err != nil {
		return err
	}
	candidates, err := r.selectCandidates(ctx, rc, check, candidates)
	if err != nil {
		return err
	}

	if err := step(StateLoadingAttributes); err != nil {
		return err
	}
	if len(check.Attributes) > 0 && len(candidates) > 0 {
		if err := rc.Client.LoadAttributes(ctx, candidates, check.Attributes...); err != nil {
			return fmt.Errorf("load candidate attributes: %w", err)
		}
	}

	if err := step(StateEscaping); err != nil {
		return err
	}
	kept, escaped, err := r.escape.Filter(ctx, rc.Client, candidates)
	if err != nil {
		return fmt.Errorf("apply escape policy: %w", err)
	}
	res.Escaped = escaped

	if err := step(StateChecking); err != nil {
		return err
	}
	for _, c := range kept {
		if err := ctx.Err(); err != nil {
			return err
		}
		issues, err := check.Inspect(ctx, rc, c)
		res.Checked++
		if err != nil {
			if isCancellation(ctx, err) || !check.Batch || fatal(err) {
				return fmt.Errorf("check %s: %w", c, err)
			}
			logger.Warn("Check failed for entity, continuing",
				zap.Int64("entity_id", int64(c.ID)),
				zap.Error(err))
			res.Skipped = append(res.Skipped, EntityFailure{Entity: c, Err: err})
			continue
		}
		for _, issue := range issues {
			if issue == nil {
				continue
			}
			if len(issue.Entities) == 0 {
				issue.Entities = []*domain.Instance{c}
			}
			res.Issues = append(res.Issues, issue)
			*findings = append(*findings, finding{entity: c, issue: issue})
		}
	}
	return nil
}

func (r *Runner) selectCandidates(ctx context.Context, rc *RunContext, check *Check, given []*domain.Instance) ([]*domain.Instance, error) {
	candidates := given
	if candidates == nil {
		var err error
		if check.Candidates != nil {
			candidates, err = check.Candidates(ctx, rc)
		} else {
			candidates, err = rc.Client.FetchByClass(ctx, check.CandidateClass)
		}
		if err != nil {
			return nil, fmt.Errorf("load candidates: %w", err)
		}
	}
	if check.CandidateClass != "" {
		for _, c := range candidates {
			if !c.IsA(check.CandidateClass) {
				return nil, &domain.InvalidCandidateTypeError{ID: c.ID, Class: c.ClassName(), Want: check.CandidateClass}
			}
		}
	}
	return domain.Dedup(candidates), nil
}

func buildReport(check *Check, findings []finding) (*report.Report, error) {
	b := report.NewBuilder(check.header()...)
	for _, f := range findings {
		if err := b.Add(check.row(f.entity, f.issue)...); err != nil {
			return b.Build(), fmt.Errorf("report row for %d: %w", f.entity.ID, err)
		}
	}
	return b.Build(), nil
}

// fatal errors end a batch check too
func fatal(err error) bool {
	return errors.Is(err, domain.ErrBackingStore) || errors.Is(err, domain.ErrInvalidCandidateType)
}

func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ctx.Err() != nil
}

// RunAll runs checks concurrently, each over its own RunContext. The first
// fatal error cancels the remaining runs, which end cancelled. limit bounds
// the number of concurrent runs when positive.
func (r *Runner) RunAll(ctx context.Context, checks []*Check, limit int) ([]*Result, error) {
	results := make([]*Result, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, c := range checks {
		g.Go(func() error {
			res, err := r.Run(gctx, c, nil)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	return results, err
}
