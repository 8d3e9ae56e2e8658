// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package run

import "time"

// Outcome is the terminal report for one descriptor.
type Outcome struct {
	RunID      string    `json:"run_id"`
	Status     Status    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Output     string    `json:"output,omitempty"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
	// Reused is set when the outcome comes from an earlier session instead
	// of a fresh execution.
	Reused bool `json:"reused,omitempty"`
}

// Duration is the wall time between start and finish. It is zero for
// descriptors that never started.
func (o *Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Summary counts outcomes by status.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	TimedOut  int
	Reused    int
}

// Summarize counts the outcomes in results.
func Summarize(results map[string]*Outcome) Summary {
	s := Summary{Total: len(results)}
	for _, o := range results {
		switch o.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusTimedOut:
			s.TimedOut++
		}
		if o.Reused {
			s.Reused++
		}
	}
	return s
}

// AllSucceeded reports whether every outcome succeeded.
func (s Summary) AllSucceeded() bool {
	return s.Succeeded == s.Total
}
