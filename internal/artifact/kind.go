// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package artifact

import (
	"fmt"
	"strings"
)

// Kind classifies an artifact.
type Kind string

const (
	KindRepository  Kind = "repository"
	KindBinary      Kind = "binary"
	KindDiskImage   Kind = "disk-image"
	KindKernelImage Kind = "kernel-image"
)

var kindAliases = map[string]Kind{
	"repository":   KindRepository,
	"repo":         KindRepository,
	"git-repo":     KindRepository,
	"binary":       KindBinary,
	"gem5-binary":  KindBinary,
	"disk-image":   KindDiskImage,
	"disk":         KindDiskImage,
	"kernel-image": KindKernelImage,
	"kernel":       KindKernelImage,
}

// ParseKind accepts the canonical kind names and the spellings found in older
// campaign scripts ("git repo", "gem5 binary", "disk image", "kernel").
func ParseKind(v string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	if k, ok := kindAliases[norm]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown artifact kind %q", ErrInvalidDeclaration, v)
}

func (k Kind) String() string { return string(k) }
