// Package dag holds the artifact dependency graph of one installation run.
//
// The graph is built eagerly, before any installation side effect begins, and
// is read-only afterwards. Nodes are keyed by artifact name and remember the
// order in which they were first discovered; that index is the tie-break for
// every ordering the package produces, so identical inputs always yield
// identical plans and install logs.
package dag
