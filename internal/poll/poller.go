package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"jobsync-engine/internal/scheduler"
)

var ErrRunInProgress = errors.New("a run is already in progress")

type Status struct {
	Running    bool    `json:"running"`
	LastRunAt  string  `json:"lastRunAt,omitempty"`
	LastOkAt   string  `json:"lastOkAt,omitempty"`
	LastError  string  `json:"lastError,omitempty"`
	LastReport *Report `json:"lastReport,omitempty"`
}

// Poller serialises runs between the ticker and on-demand callers and
// keeps the status of the latest one.
type Poller struct {
	runner  *Runner
	running atomic.Bool
	status  atomic.Value // Status
}

func NewPoller(r *Runner) *Poller {
	p := &Poller{runner: r}
	p.status.Store(Status{})
	return p
}

func (p *Poller) Status() Status {
	st, _ := p.status.Load().(Status)
	st.Running = p.running.Load()
	return st
}

// Run executes one pass unless another one is active, in which case it
// returns ErrRunInProgress immediately.
func (p *Poller) Run(ctx context.Context, limit int) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	st := p.Status()
	st.LastRunAt = time.Now().UTC().Format(time.RFC3339)
	p.status.Store(st)

	rep, err := p.runner.RunOnce(ctx, limit)

	st.LastReport = &rep
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
		st.LastOkAt = time.Now().UTC().Format(time.RFC3339)
	}
	p.status.Store(st)
	return rep, err
}

// Start runs the poller on interval until ctx is done.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	go scheduler.Every(ctx, interval, "poll", func(ctx context.Context) error {
		_, err := p.Run(ctx, 0)
		if errors.Is(err, ErrRunInProgress) {
			return nil
		}
		return err
	})
}
