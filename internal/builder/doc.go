/*
Package builder resolves a set of requested artifact references into a
validated dependency graph. It is the bridge between the registry (names to
constructors) and the executor that installs the graph.

Graph construction is a multi-phase process, finished before any installation
side effect begins:

 1. Resolution: every reference is looked up in the registry and its
    constructor invoked through registry.Construct. The resulting artifact's own
    dependencies are resolved the same way, depth first, in name order. An
    unknown name fails the build with apperrors.ErrUnknownArtifact.

 2. Linking: for every dependency a directed edge is added from the dependency
    to its dependent. A name already in the graph is never overwritten: the
    first resolution wins, and a later reference pinned to another version
    fails with apperrors.ErrVersionConflict.

 3. Validation: the DAG's cycle detection runs over the whole graph. Any cycle
    fails with apperrors.ErrCyclicDependency naming its members.

Upon success the builder hands the graph to the installer, which orders it with
dag.Graph.TopologicalOrder and executes it.
*/
package builder
