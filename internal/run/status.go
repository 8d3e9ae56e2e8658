// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package run

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a descriptor.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// ErrInvalidTransition is returned for any status change the state machine
// does not allow.
var ErrInvalidTransition = errors.New("invalid run status transition")

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// ParseStatus converts a stored string back into a Status.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusTimedOut:
		return s, nil
	}
	return "", fmt.Errorf("unknown run status %q", v)
}
