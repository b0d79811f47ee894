package deployer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/pooldeploy/internal/chain"
	"github.com/Bidon15/pooldeploy/internal/journal"
	"github.com/Bidon15/pooldeploy/internal/metrics"
)

// Journal persists step results. *journal.Writer implements it.
type Journal interface {
	Completed(step string) (journal.Record, bool)
	MarkRunning(ctx context.Context) error
	RecordStep(ctx context.Context, rec journal.Record) error
	MarkComplete(ctx context.Context) error
	MarkFailed(ctx context.Context, errMsg string) error
}

// StepError reports the step that stopped a run.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("step %s failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
	}
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStepFailed) true for every StepError.
func (e *StepError) Is(target error) bool { return target == ErrStepFailed }

// StepResult is a completed step as seen by the caller.
type StepResult struct {
	Step     string
	Label    string
	Contract string
	Address  common.Address
	Outcome  Outcome
	// Resumed is set when the address came from an earlier run.
	Resumed bool
}

// Result lists the completed steps in execution order.
type Result struct {
	Steps []StepResult
}

// Address returns the address produced by step.
func (r *Result) Address(step string) (common.Address, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Address, true
		}
	}
	return common.Address{}, false
}

// Sequencer executes plans one confirmed step at a time.
type Sequencer struct {
	backend     ContractBackend
	contracts   ContractSource
	out         io.Writer
	logger      *slog.Logger
	metrics     *metrics.Recorder
	network     string
	attempts    int
	retryDelay  time.Duration
	isRetryable func(error) bool
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}

// WithMetrics records step and run metrics labelled with network.
func WithMetrics(r *metrics.Recorder, network string) Option {
	return func(s *Sequencer) {
		s.metrics = r
		s.network = network
	}
}

// WithRetry allows up to attempts tries per step for transient errors.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *Sequencer) {
		if attempts < 1 {
			attempts = 1
		}
		s.attempts = attempts
		s.retryDelay = delay
	}
}

// WithRetryPolicy overrides which errors are retried.
func WithRetryPolicy(fn func(error) bool) Option {
	return func(s *Sequencer) { s.isRetryable = fn }
}

// NewSequencer creates a sequencer that prints one address line per step
// to out.
func NewSequencer(backend ContractBackend, contracts ContractSource, out io.Writer, opts ...Option) *Sequencer {
	s := &Sequencer{
		backend:     backend,
		contracts:   contracts,
		out:         out,
		logger:      slog.Default(),
		attempts:    1,
		isRetryable: chain.IsTransient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes plan. Steps already recorded in j are not repeated; their
// addresses are reused and printed again. The first failing step stops
// the run. j may be nil.
func (s *Sequencer) Run(ctx context.Context, plan *Plan, j Journal) (*Result, error) {
	steps, err := plan.Order()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if j != nil {
		if err := j.MarkRunning(ctx); err != nil {
			return nil, err
		}
	}

	env := newEnv(s.backend, s.contracts)
	result := &Result{}

	for _, step := range steps {
		res, err := s.runStep(ctx, env, step, j)
		if err != nil {
			s.logger.Error("deployment failed",
				slog.String("plan", plan.Name),
				slog.String("step", step.Name),
				slog.String("error", err.Error()),
			)
			if j != nil {
				// journal errors are logged; the step error is returned
				if jerr := j.MarkFailed(context.WithoutCancel(ctx), err.Error()); jerr != nil {
					s.logger.Warn("failed to record run failure", slog.String("error", jerr.Error()))
				}
			}
			s.observeRun(journal.StatusFailed, start)
			return result, err
		}

		env.addresses[step.Name] = res.Address
		result.Steps = append(result.Steps, res)

		if _, err := fmt.Fprintf(s.out, "%s address: %s\n", step.Label, res.Address.Hex()); err != nil {
			return result, fmt.Errorf("write output: %w", err)
		}
	}

	if j != nil {
		if err := j.MarkComplete(ctx); err != nil {
			return result, err
		}
	}
	s.observeRun(journal.StatusCompleted, start)

	s.logger.Info("deployment complete",
		slog.String("plan", plan.Name),
		slog.Int("steps", len(result.Steps)),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *Sequencer) runStep(ctx context.Context, env *Env, step Step, j Journal) (StepResult, error) {
	res := StepResult{Step: step.Name, Label: step.Label, Contract: step.Contract}

	if j != nil {
		if rec, ok := j.Completed(step.Name); ok {
			s.logger.Info("step already completed, skipping",
				slog.String("step", step.Name),
				slog.String("address", rec.Address.Hex()),
			)
			s.observeStep(step.Name, metrics.StepSkipped, 0, 0)
			res.Address = rec.Address
			res.Outcome = Outcome{Address: rec.Address, TxHash: rec.TxHash, BlockNumber: rec.BlockNumber}
			res.Resumed = true
			return res, nil
		}
	}

	s.logger.Info("running step",
		slog.String("step", step.Name),
		slog.String("contract", step.Contract),
	)

	started := time.Now()
	outcome, attempts, err := s.runWithRetry(ctx, env, step)
	if err == nil && outcome.Address == (common.Address{}) {
		err = ErrZeroAddress
	}
	if err != nil {
		s.observeStep(step.Name, metrics.StepFailed, time.Since(started), 0)
		return res, &StepError{Step: step.Name, Attempts: attempts, Err: err}
	}
	s.observeStep(step.Name, metrics.StepDeployed, time.Since(started), outcome.GasUsed)

	if j != nil {
		err := j.RecordStep(ctx, journal.Record{
			Step:        step.Name,
			Label:       step.Label,
			Contract:    step.Contract,
			Address:     outcome.Address,
			TxHash:      outcome.TxHash,
			BlockNumber: outcome.BlockNumber,
			Attempts:    attempts,
		})
		if err != nil {
			return res, &StepError{Step: step.Name, Attempts: attempts, Err: err}
		}
	}

	attrs := []any{
		slog.String("step", step.Name),
		slog.String("address", outcome.Address.Hex()),
		slog.Duration("duration", time.Since(started)),
	}
	if outcome.TxHash != nil {
		attrs = append(attrs, slog.String("tx_hash", outcome.TxHash.Hex()), slog.Uint64("block", outcome.BlockNumber))
	}
	s.logger.Info("step completed", attrs...)

	res.Address = outcome.Address
	res.Outcome = outcome
	return res, nil
}

// runWithRetry runs step until it succeeds, fails permanently, or runs out
// of attempts. It returns the number of attempts made.
func (s *Sequencer) runWithRetry(ctx context.Context, env *Env, step Step) (Outcome, int, error) {
	var lastErr error

	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			s.logger.Info("retrying step",
				slog.String("step", step.Name),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", s.attempts),
			)
			s.observeStep(step.Name, metrics.StepRetried, 0, 0)

			select {
			case <-ctx.Done():
				return Outcome{}, attempt, ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}

		outcome, err := step.Run(ctx, env)
		if err == nil {
			return outcome, attempt + 1, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Outcome{}, attempt + 1, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		}
		if !s.isRetryable(err) {
			return Outcome{}, attempt + 1, err
		}

		s.logger.Warn("step failed with retryable error",
			slog.String("step", step.Name),
			slog.String("error", err.Error()),
		)
	}

	return Outcome{}, s.attempts, lastErr
}

func (s *Sequencer) observeStep(step, outcome string, d time.Duration, gas uint64) {
	if s.metrics != nil {
		s.metrics.ObserveStep(step, outcome, d, gas)
	}
}

func (s *Sequencer) observeRun(status journal.Status, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRun(s.network, string(status), time.Since(start))
	}
}
