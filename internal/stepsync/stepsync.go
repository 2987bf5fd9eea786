// Package stepsync computes the minimum synchronized execution step across
// all running components.
package stepsync

import (
	"errors"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"cosim/orchestrator/pkg/types"
)

// ErrNoStepAvailable is returned when no running component offers a step
// hint. It is a "cannot advance yet" signal, not a workflow failure: the
// engine waits for the next report instead of failing.
var ErrNoStepAvailable = errors.New("no running component offered a step hint")

// Synchronizer selects the next safe step size from registry snapshots and
// keeps a histogram of the chosen values for the status surface.
type Synchronizer struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewSynchronizer creates a step synchronizer. The histogram tracks chosen
// steps from 1 microsecond to 1 hour of simulated time.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{
		hist: hdrhistogram.New(1, time.Hour.Microseconds(), 3),
	}
}

// NextStep returns the minimum step hint offered by components in the
// running state. Components in any other state do not constrain the step:
// advancing by more than the slowest running component's safe interval
// would break the coupling contract between components, while paused or
// ended components have nothing to advance.
//
// Hints are re-read from the snapshot on every call, so a workflow resumed
// after a pause never advances on stale offers.
func (s *Synchronizer) NextStep(snap types.Snapshot) (float64, error) {
	min := 0.0
	found := false
	for _, r := range snap {
		if r.State != types.LocalStateRunning || r.StepHint == nil || !r.HintValid() {
			continue
		}
		if !found || *r.StepHint < min {
			min = *r.StepHint
			found = true
		}
	}
	if !found {
		return 0, ErrNoStepAvailable
	}
	s.observe(min)
	return min, nil
}

func (s *Synchronizer) observe(step float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Recorded in microseconds; values outside the histogram range are
	// dropped, the chosen step itself is unaffected.
	_ = s.hist.RecordValue(int64(step * float64(time.Second.Microseconds())))
}

// StepStats summarizes the steps chosen so far.
type StepStats struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min_seconds"`
	Max   float64 `json:"max_seconds"`
	Mean  float64 `json:"mean_seconds"`
	P95   float64 `json:"p95_seconds"`
}

// Stats returns a summary of all chosen step sizes.
func (s *Synchronizer) Stats() StepStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	usec := float64(time.Second.Microseconds())
	return StepStats{
		Count: s.hist.TotalCount(),
		Min:   float64(s.hist.Min()) / usec,
		Max:   float64(s.hist.Max()) / usec,
		Mean:  s.hist.Mean() / usec,
		P95:   float64(s.hist.ValueAtQuantile(95)) / usec,
	}
}
