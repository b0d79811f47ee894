package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Bidon15/pooldeploy/internal/pkg/runid"
)

// Writer records the progress of a single run. Every change is persisted
// immediately so an interrupted run can be resumed from the last
// confirmed step.
type Writer struct {
	store *Store
	run   *Run
	now   func() time.Time
}

// RunInfo describes a new run.
type RunInfo struct {
	Plan     string
	Network  string
	ChainID  uint64
	Deployer common.Address
	Params   map[string]string
}

// Start creates and persists a new run.
func Start(ctx context.Context, store *Store, info RunInfo) (*Writer, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:        runid.NewAt(now),
		Plan:      info.Plan,
		Network:   info.Network,
		ChainID:   info.ChainID,
		Deployer:  info.Deployer,
		Params:    info.Params,
		Status:    StatusPending,
		Records:   []Record{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &Writer{store: store, run: run, now: time.Now}, nil
}

// Resume reopens a stopped run. The run must target the same plan and
// chain as info.
func Resume(ctx context.Context, store *Store, id string, info RunInfo) (*Writer, error) {
	run, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.CanResume() {
		return nil, fmt.Errorf("run %s is %s and cannot be resumed", run.ID, run.Status)
	}
	if run.Plan != info.Plan || run.ChainID != info.ChainID {
		return nil, fmt.Errorf("run %s deployed plan %q on chain %d, not %q on chain %d",
			run.ID, run.Plan, run.ChainID, info.Plan, info.ChainID)
	}
	if run.Deployer != info.Deployer {
		return nil, fmt.Errorf("run %s was deployed by %s, not %s", run.ID, run.Deployer.Hex(), info.Deployer.Hex())
	}
	for k, v := range run.Params {
		if info.Params[k] != v {
			return nil, fmt.Errorf("run %s used %s=%q, now %q", run.ID, k, v, info.Params[k])
		}
	}
	return &Writer{store: store, run: run, now: time.Now}, nil
}

// RunID returns the id of the run being written.
func (w *Writer) RunID() string {
	return w.run.ID
}

// Run returns a copy of the current run state.
func (w *Writer) Run() Run {
	r := *w.run
	r.Records = append([]Record(nil), w.run.Records...)
	return r
}

// Completed returns the record of a step finished by an earlier attempt.
func (w *Writer) Completed(step string) (Record, bool) {
	return w.run.Record(step)
}

// MarkRunning marks the run as in progress.
func (w *Writer) MarkRunning(ctx context.Context) error {
	w.run.Status = StatusRunning
	w.run.Error = ""
	return w.save(ctx, "mark running")
}

// RecordStep appends a completed step and persists the run.
func (w *Writer) RecordStep(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = w.now().UTC()
	}
	w.run.Records = append(w.run.Records, rec)
	return w.save(ctx, "record step")
}

// MarkComplete marks the run as successfully completed.
func (w *Writer) MarkComplete(ctx context.Context) error {
	now := w.now().UTC()
	w.run.Status = StatusCompleted
	w.run.CompletedAt = &now
	return w.save(ctx, "mark complete")
}

// MarkFailed marks the run as failed with an error message.
func (w *Writer) MarkFailed(ctx context.Context, errMsg string) error {
	w.run.Status = StatusFailed
	w.run.Error = errMsg
	return w.save(ctx, "mark failed")
}

func (w *Writer) save(ctx context.Context, op string) error {
	w.run.UpdatedAt = w.now().UTC()
	if err := w.store.Save(ctx, w.run); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
