// Package campaign defines the format-agnostic model of a benchmarking
// campaign, along with the Loader interface implemented per file format
// (internal/hcl, internal/yamlconf) and Build, which turns a loaded model into
// registered artifacts and a sweep ready for expansion.
//
// The Model is the single source of truth for the artifact registry, the
// sweep expansion and the job command line.
package campaign
