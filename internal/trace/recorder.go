package trace

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/me/cadence/pkg/event"
	"github.com/me/cadence/pkg/loop"
	"github.com/me/cadence/pkg/model"
	"github.com/me/cadence/pkg/runner"
)

// Recorder buffers trace events on the loop goroutine and writes them to a
// Store on Flush. It is not safe for concurrent use.
type Recorder struct {
	store  Store
	loop   *loop.Loop
	logger *slog.Logger

	run model.TraceRun
	seq int
	buf []model.TraceEvent
}

// NewRecorder starts a run called name and returns a recorder for it.
func NewRecorder(ctx context.Context, st Store, lp *loop.Loop, name string, logger *slog.Logger) (*Recorder, error) {
	r := &Recorder{
		store:  st,
		loop:   lp,
		logger: logger.With("component", "recorder"),
		run: model.TraceRun{
			ID:        "run_" + uuid.New().String(),
			Name:      name,
			StartedAt: time.Now().UTC(),
		},
	}
	if err := st.CreateRun(ctx, &r.run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	r.logger.Info("trace run started", "run_id", r.run.ID, "name", name)
	return r, nil
}

// RunID returns the ID of the run being recorded.
func (r *Recorder) RunID() string {
	return r.run.ID
}

// Hook returns a runner hook that records every task transition.
func (r *Recorder) Hook() runner.Hook {
	return func(t runner.Transition) {
		ev := model.TraceEvent{
			Kind:     model.EventTransition,
			TaskID:   t.ID,
			TaskName: t.Name,
			From:     t.From.String(),
			To:       t.To.String(),
		}
		if t.Err != nil && t.To.IsTerminal() {
			ev.Error = t.Err.Error()
		}
		r.add(ev)
	}
}

// Emit records a state change that set keys.
func (r *Recorder) Emit(keys []string) {
	r.add(model.TraceEvent{Kind: model.EventEmit, Keys: slices.Clone(keys)})
}

// Log records a free-form message.
func (r *Recorder) Log(msg string) {
	r.add(model.TraceEvent{Kind: model.EventLog, Message: msg})
}

func (r *Recorder) add(ev model.TraceEvent) {
	r.seq++
	ev.RunID = r.run.ID
	ev.Seq = r.seq
	ev.Frame = r.loop.Frame()
	ev.Elapsed = r.loop.Elapsed()
	r.buf = append(r.buf, ev)
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	return len(r.buf)
}

// Flush writes buffered events. On failure the buffer is kept.
func (r *Recorder) Flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.store.AppendEvents(ctx, r.buf); err != nil {
		return fmt.Errorf("flush %d events: %w", len(r.buf), err)
	}
	r.logger.Debug("trace flushed", "run_id", r.run.ID, "events", len(r.buf))
	r.buf = r.buf[:0]
	return nil
}

// Finish flushes and closes the run with the loop's frame count and
// simulated time.
func (r *Recorder) Finish(ctx context.Context) error {
	if err := r.Flush(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.run.EndedAt = &now
	r.run.Frames = r.loop.Frame()
	r.run.Simulated = r.loop.Elapsed()
	if err := r.store.FinishRun(ctx, &r.run); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	r.logger.Info("trace run finished", "run_id", r.run.ID, "events", r.seq, "frames", r.run.Frames)
	return nil
}

// Watch records every emit on ev until the returned listener is removed.
func Watch[C any](r *Recorder, ev *event.Event[C]) *event.Listener[C] {
	return ev.On(func(_ C, changed []string) {
		r.Emit(changed)
	})
}
