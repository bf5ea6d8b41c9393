package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/pipeline"
	"github.com/aretw0/switchyard/pkg/ports"
)

// Error types recorded for failures that carry no type of their own.
const (
	errTypeActivity      = "ActivityFailure"
	errTypeTimeout       = "StartToCloseTimeout"
	errTypeSerialization = "ResultSerialization"
	errTypePanic         = pipeline.ErrTypeActivityPanic
)

// journal is the ActivityRunner of one run. Entries below len(state.Journal)
// at construction are replayed; everything after is executed and appended.
type journal struct {
	engine *Engine
	runID  string

	mu    sync.Mutex
	state *domain.RunState
	next  int
}

func newJournal(e *Engine, state *domain.RunState) *journal {
	return &journal{engine: e, runID: state.RunID, state: state}
}

// recorded returns the entry at the next sequence number if one exists.
func (j *journal) recorded(kind domain.JournalKind, name string) (seq int, entry *domain.JournalEntry, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq = j.next
	j.next++
	if seq >= len(j.state.Journal) {
		return seq, nil, nil
	}
	e := j.state.Journal[seq]
	if e.Kind != kind || e.Name != name {
		return seq, nil, fmt.Errorf("%w: run %s step %d recorded %s %q, replay issued %s %q",
			domain.ErrNonDeterministic, j.runID, seq, e.Kind, e.Name, kind, name)
	}
	return seq, &e, nil
}

func (j *journal) append(ctx context.Context, entry domain.JournalEntry) error {
	j.mu.Lock()
	j.state.Journal = append(j.state.Journal, entry)
	j.mu.Unlock()
	return j.checkpoint(ctx)
}

// checkpoint persists the run state. It uses a context detached from
// cancellation so a cancelled run still records what it completed.
func (j *journal) checkpoint(ctx context.Context) error {
	j.mu.Lock()
	j.state.UpdatedAt = j.engine.clock.Now()
	snapshot := j.state.Clone()
	j.mu.Unlock()

	if err := j.engine.runs.Save(context.WithoutCancel(ctx), snapshot.RunID, *snapshot); err != nil {
		return fmt.Errorf("checkpoint run %s: %w", snapshot.RunID, err)
	}
	return nil
}

func (j *journal) update(fn func(s *domain.RunState)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(j.state)
}

func (j *journal) snapshot() *domain.RunState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state.Clone()
}

// RunActivity implements ports.ActivityRunner.
func (j *journal) RunActivity(ctx context.Context, name string, opts ports.ActivityOptions, fn ports.ActivityFunc) (json.RawMessage, error) {
	seq, entry, err := j.recorded(domain.JournalActivity, name)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		j.engine.emitActivity(ctx, j.runID, name, true, entry.Attempts, 0, entry.Error != "")
		if entry.Error != "" {
			return nil, replayedError(entry)
		}
		return entry.Result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	policy := j.engine.activityPolicy
	if opts.RetryPolicy != nil {
		policy = *opts.RetryPolicy
	}

	started := time.Now()
	for attempt := 1; ; attempt++ {
		v, callErr := invoke(ctx, opts.StartToCloseTimeout, fn)
		if callErr == nil {
			raw, mErr := json.Marshal(v)
			if mErr != nil {
				callErr = domain.NewNonRetryableError(errTypeSerialization, mErr.Error(), mErr)
			} else {
				rec := domain.JournalEntry{Seq: seq, Kind: domain.JournalActivity, Name: name, Result: raw, Attempts: attempt}
				if err := j.append(ctx, rec); err != nil {
					return nil, err
				}
				j.engine.emitActivity(ctx, j.runID, name, false, attempt, time.Since(started), false)
				return raw, nil
			}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !policy.IsRetryable(callErr) || attempt >= policy.Attempts() {
			appErr := toApplicationError(callErr)
			rec := domain.JournalEntry{
				Seq:          seq,
				Kind:         domain.JournalActivity,
				Name:         name,
				Error:        appErr.Message,
				ErrorType:    appErr.Type,
				NonRetryable: appErr.NonRetryable,
				Attempts:     attempt,
			}
			if err := j.append(ctx, rec); err != nil {
				return nil, err
			}
			j.engine.emitActivity(ctx, j.runID, name, false, attempt, time.Since(started), true)
			return nil, appErr
		}

		j.engine.logger.Debug("retrying activity", "run_id", j.runID, "activity", name, "attempt", attempt, "err", callErr)
		if err := sleep(ctx, policy.Backoff(attempt)); err != nil {
			return nil, err
		}
	}
}

// Sleep implements ports.ActivityRunner. A recorded timer returns at once.
func (j *journal) Sleep(ctx context.Context, d time.Duration) error {
	name := d.String()
	seq, entry, err := j.recorded(domain.JournalTimer, name)
	if err != nil {
		return err
	}
	if entry != nil {
		return nil
	}
	if err := sleep(ctx, d); err != nil {
		return err
	}
	return j.append(ctx, domain.JournalEntry{Seq: seq, Kind: domain.JournalTimer, Name: name})
}

// Now implements ports.ActivityRunner.
func (j *journal) Now(ctx context.Context) (time.Time, error) {
	seq, entry, err := j.recorded(domain.JournalNow, "now")
	if err != nil {
		return time.Time{}, err
	}
	if entry != nil {
		var t time.Time
		if err := json.Unmarshal(entry.Result, &t); err != nil {
			return time.Time{}, fmt.Errorf("%w: unreadable clock entry %d: %v", domain.ErrNonDeterministic, seq, err)
		}
		return t, nil
	}

	now := j.engine.clock.Now()
	raw, err := json.Marshal(now)
	if err != nil {
		return time.Time{}, err
	}
	if err := j.append(ctx, domain.JournalEntry{Seq: seq, Kind: domain.JournalNow, Name: "now", Result: raw}); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// invoke runs fn with an optional start-to-close timeout, converting panics
// and timeouts into application errors.
func invoke(ctx context.Context, timeout time.Duration, fn ports.ActivityFunc) (v any, err error) {
	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewApplicationError(errTypePanic, fmt.Sprint(r), nil)
		}
	}()

	v, err = fn(actx)
	if err != nil && timeout > 0 && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return nil, domain.NewApplicationError(errTypeTimeout, fmt.Sprintf("activity exceeded %s", timeout), err)
	}
	return v, err
}

// toApplicationError gives every recorded failure the same shape live and on
// replay.
func toApplicationError(err error) *domain.ApplicationError {
	var appErr *domain.ApplicationError
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if msg == "" && appErr.Cause != nil {
			msg = appErr.Cause.Error()
		}
		return &domain.ApplicationError{Type: appErr.Type, Message: msg, NonRetryable: appErr.NonRetryable, Cause: err}
	}
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return &domain.ApplicationError{Type: "ValidationError", Message: valErr.Error(), NonRetryable: true, Cause: err}
	}
	return &domain.ApplicationError{Type: errTypeActivity, Message: err.Error(), Cause: err}
}

func replayedError(e *domain.JournalEntry) error {
	return &domain.ApplicationError{Type: e.ErrorType, Message: e.Error, NonRetryable: e.NonRetryable}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
