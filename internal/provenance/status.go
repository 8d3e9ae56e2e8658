// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package provenance

import "fmt"

// Status is the build progress of an artifact. Statuses are ordered and a
// record's status never moves backwards.
type Status string

const (
	// StatusDeclared means the artifact was registered but nothing is known
	// about its materialised form.
	StatusDeclared Status = "declared"
	// StatusBuilt means its build command ran successfully.
	StatusBuilt Status = "built"
	// StatusVerified means its path was checked and a content fingerprint recorded.
	StatusVerified Status = "verified"
)

func (s Status) rank() int {
	switch s {
	case StatusDeclared:
		return 1
	case StatusBuilt:
		return 2
	case StatusVerified:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s has progressed at least as far as other.
func (s Status) AtLeast(other Status) bool {
	return s.rank() >= other.rank()
}

// ParseStatus converts a stored string back into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if s.rank() == 0 {
		return "", fmt.Errorf("unknown provenance status %q", v)
	}
	return s, nil
}
