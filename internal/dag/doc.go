// Package dag provides the dependency graph behind the artifact registry. Nodes
// are artifact identities; an edge from A to B records that B was built from A.
// The graph keeps insertion order so that every traversal it offers, including
// the topological order, is deterministic.
package dag
