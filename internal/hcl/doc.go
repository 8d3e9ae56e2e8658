// Package hcl provides the HCL implementation of campaign.Loader. It is
// responsible for file parsing, reference checking, and evaluating the
// expressions of a campaign (locals, artifact attributes, axis legality and
// job templates) with go-cty.
//
// The evaluation helpers are exported so other formats can embed HCL
// templates, as internal/yamlconf does.
package hcl
