// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package run

import (
	"slices"
	"strings"
)

// Param is the value chosen for one sweep axis.
type Param struct {
	Axis  string `json:"axis" yaml:"axis"`
	Value string `json:"value" yaml:"value"`
}

// Params is an ordered list of chosen axis values, in declared axis order.
type Params []Param

// Get returns the value chosen for axis.
func (p Params) Get(axis string) (string, bool) {
	for _, param := range p {
		if param.Axis == axis {
			return param.Value, true
		}
	}
	return "", false
}

// With returns a copy of p extended with one more parameter. The receiver is
// never modified, so prefixes can be shared safely during expansion.
func (p Params) With(axis, value string) Params {
	out := make(Params, len(p), len(p)+1)
	copy(out, p)
	return append(out, Param{Axis: axis, Value: value})
}

// Map returns the parameters keyed by axis name.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, param := range p {
		m[param.Axis] = param.Value
	}
	return m
}

// Values returns the chosen values in axis order.
func (p Params) Values() []string {
	out := make([]string, len(p))
	for i, param := range p {
		out[i] = param.Value
	}
	return out
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	return slices.Clone(p)
}

// String renders the parameters as "axis=value,axis=value".
func (p Params) String() string {
	parts := make([]string, len(p))
	for i, param := range p {
		parts[i] = param.Axis + "=" + param.Value
	}
	return strings.Join(parts, ",")
}
