package dag

import (
	"sync"

	"github.com/vk/moveboot/internal/artifact"
)

// Graph is a collection of artifact nodes and their dependencies.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by artifact name.
	nodes map[string]*Node
	// order lists node names by discovery index.
	order []string
}

// Node is a single vertex of the graph: one resolved artifact.
type Node struct {
	// ID is the artifact name.
	ID string
	// Index is the node's first-discovery position, starting at zero.
	Index int
	// Artifact is the resolved description of the node.
	Artifact artifact.Artifact

	// deps holds the nodes this node depends on (predecessors).
	deps map[string]*Node
	// dependents holds the nodes that depend on this node (successors).
	dependents map[string]*Node
}
