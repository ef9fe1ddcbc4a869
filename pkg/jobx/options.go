package jobx

import (
	"context"
	"time"
)

// Pauser reports whether job intake is paused. Checked before every claim.
type Pauser interface {
	Paused(ctx context.Context) bool
}

// WorkerOptions configures the worker loop.
type WorkerOptions struct {
	WorkerID        string
	PollInterval    time.Duration
	StaleAfter      time.Duration
	ReaperInterval  time.Duration
	ShutdownTimeout time.Duration
	Pauser          Pauser
}

func defaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		PollInterval:    3 * time.Second,
		StaleAfter:      20 * time.Minute,
		ReaperInterval:  time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// WorkerOption is a functional option for configuring the worker.
type WorkerOption func(*WorkerOptions)

// WithWorkerID sets a stable worker identity. A random one is generated
// when unset.
func WithWorkerID(id string) WorkerOption {
	return func(o *WorkerOptions) {
		o.WorkerID = id
	}
}

// WithPollInterval sets the interval between claim attempts when idle.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.PollInterval = d
	}
}

// WithStaleAfter sets how long a processing job may go without a
// heartbeat before the reaper returns it to pending.
func WithStaleAfter(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.StaleAfter = d
	}
}

// WithReaperInterval sets the minimum spacing between reaper sweeps.
func WithReaperInterval(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.ReaperInterval = d
	}
}

// WithShutdownTimeout sets the maximum time to wait for the in-flight job
// on shutdown.
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.ShutdownTimeout = d
	}
}

// WithPauser sets the pause check consulted before every claim.
func WithPauser(p Pauser) WorkerOption {
	return func(o *WorkerOptions) {
		o.Pauser = p
	}
}
