// Package runstate holds the process-wide abort reason, the failure counter
// and the lifecycle phase. One RunState is created per process and passed to
// every component.
package runstate

import (
	"sync"
	"sync/atomic"
)

type Phase int32

const (
	PhaseInit Phase = iota
	PhaseSymlinksApplied
	PhaseDownloading
	PhaseFinalized
)

func (p Phase) String() string {
	return [...]string{"Init", "SymlinksApplied", "Downloading", "Finalized"}[p]
}

type RunState struct {
	errors atomic.Int64
	phase  atomic.Int32

	// mu orders the abort reason against the switch to PhaseFinalized.
	mu  sync.Mutex
	err error
}

func New() *RunState {
	return &RunState{}
}

// MarkAborted records the abort reason. Only the first call has effect; it
// returns true when this call set the reason.
func (s *RunState) MarkAborted(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false
	}
	s.err = err

	return true
}

/*
Interrupt aborts the run with err unless it is already finalized. It returns
false for a finalized run, which is left untouched. A run that is finalizing
is waited for.
*/
func (s *RunState) Interrupt(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase() == PhaseFinalized {
		return false
	}

	if s.err == nil {
		s.err = err
	}

	return true
}

/*
Finalize runs write and switches to PhaseFinalized as one step with respect
to Interrupt. An aborted run is not finalized: write is skipped and the abort
reason is returned. A write error leaves the phase unchanged.
*/
func (s *RunState) Finalize(write func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	if err := write(); err != nil {
		return err
	}
	s.SetPhase(PhaseFinalized)

	return nil
}

func (s *RunState) IsAborted() bool {
	return s.Err() != nil
}

// Err returns the abort reason, nil while the run is not aborted.
func (s *RunState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *RunState) IncErrors() {
	s.errors.Add(1)
}

func (s *RunState) ErrorCount() int64 {
	return s.errors.Load()
}

func (s *RunState) SetPhase(p Phase) {
	s.phase.Store(int32(p))
}

func (s *RunState) Phase() Phase {
	return Phase(s.phase.Load())
}
