// Package executor runs a function over every node of a dependency graph.
//
// A node starts only after all of its dependencies completed successfully.
// Independent nodes run concurrently on a fixed worker pool. The first failure
// cancels the run: nodes already in flight observe the canceled context, and
// every node downstream of the failure is skipped without being started.
//
// With a single worker nodes run one at a time in the graph's topological
// order, so repeated runs over the same graph behave identically.
package executor
