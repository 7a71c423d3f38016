package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/moveboot/internal/artifact"
)

// ErrCycle is matched by every *CycleError.
var ErrCycle = errors.New("cycle detected")

// CycleError names the members of a dependency cycle in path order, with the
// first member repeated at the end.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Members, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
	}
}

// AddNode adds a node for a. If a node with the same name already exists the
// graph is left unchanged and the existing node is returned with false.
func (g *Graph) AddNode(a artifact.Artifact) (*Node, bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n, ok := g.nodes[a.Name]; ok {
		return n, false
	}
	n := &Node{
		ID:         a.Name,
		Index:      len(g.order),
		Artifact:   a,
		deps:       make(map[string]*Node),
		dependents: make(map[string]*Node),
	}
	g.nodes[a.Name] = n
	g.order = append(g.order, a.Name)
	return n, true
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Node returns the node for an artifact name.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Nodes returns every node in discovery order.
func (g *Graph) Nodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Dependencies returns the nodes the given node depends on, in discovery order.
func (g *Graph) Dependencies(id string) ([]*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedByIndex(n.deps), nil
}

// Dependents returns the nodes that depend on the given node, in discovery order.
func (g *Graph) Dependents(id string) ([]*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedByIndex(n.dependents), nil
}

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// naming the members of the first cycle found in discovery order.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// permanent: fully visited and not part of a cycle.
	// onStack: in the current traversal path, with its position in path.
	permanent := make(map[string]bool)
	onStack := make(map[string]int)
	var path []string

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if pos, ok := onStack[n.ID]; ok {
			members := append([]string{}, path[pos:]...)
			return &CycleError{Members: append(members, n.ID)}
		}

		onStack[n.ID] = len(path)
		path = append(path, n.ID)
		for _, dep := range sortedByIndex(n.deps) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		delete(onStack, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// TopologicalOrder returns every node with dependencies before dependents.
// Among nodes that are ready at the same time the lowest discovery index goes
// first, so the order is deterministic for a given graph.
func (g *Graph) TopologicalOrder() ([]*Node, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	remaining := make(map[string]int, len(g.nodes))
	var ready []*Node
	for _, id := range g.order {
		n := g.nodes[id]
		remaining[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, n)
		}
	}

	ordered := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Index < ready[j].Index })
		n := ready[0]
		ready = ready[1:]
		ordered = append(ordered, n)
		for _, dependent := range sortedByIndex(n.dependents) {
			remaining[dependent.ID]--
			if remaining[dependent.ID] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return ordered, nil
}

func sortedByIndex(set map[string]*Node) []*Node {
	nodes := make([]*Node, 0, len(set))
	for _, n := range set {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Index < nodes[j].Index })
	return nodes
}
