package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/dag"
)

// State is the lifecycle position of a node within one run.
type State int32

// Node states. A node moves from Pending to Running and ends in Done or
// Failed, or goes straight to Skipped when a dependency did not finish.
const (
	Pending State = iota // waiting for its dependencies
	Running              // handed to a worker
	Done                 // Func returned nil
	Failed               // Func returned an error
	Skipped              // never run
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Func does the work of a single node.
type Func func(ctx context.Context, node *dag.Node) error

// Result is the outcome of one node after Run returned.
type Result struct {
	ID    string
	State State
	Err   error
}

// Executor runs a Func over a graph. An Executor is single use.
type Executor struct {
	numWorkers int
	fn         Func

	tasks []*task
	wg    sync.WaitGroup

	failMu sync.Mutex
	root   *task
}

// task is the per-run state of a node. The graph itself is never mutated.
type task struct {
	node       *dag.Node
	dependents []*task
	depCount   atomic.Int32
	state      atomic.Int32
	err        error
	skipOnce   sync.Once
}

// New prepares an Executor over g. numWorkers below one is treated as one.
func New(g *dag.Graph, numWorkers int, fn Func) (*Executor, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	nodes, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	e := &Executor{numWorkers: numWorkers, fn: fn}
	byID := make(map[string]*task, len(nodes))
	for _, n := range nodes {
		t := &task{node: n}
		byID[n.ID] = t
		e.tasks = append(e.tasks, t)
	}
	for _, t := range e.tasks {
		deps, err := g.Dependencies(t.node.ID)
		if err != nil {
			return nil, err
		}
		t.depCount.Store(int32(len(deps)))

		dependents, err := g.Dependents(t.node.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range dependents {
			t.dependents = append(t.dependents, byID[d.ID])
		}
	}
	return e, nil
}

// Run executes the graph and blocks until every node is done, failed or
// skipped. It returns the first node failure, or the context error when the
// run was canceled from outside before any node failed.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if e.numWorkers == 1 {
		logger.Debug("Running graph sequentially.", "nodes", len(e.tasks))
		e.runSequential(runCtx, cancel)
	} else {
		e.runPool(runCtx, cancel)
	}

	for _, t := range e.tasks {
		if State(t.state.Load()) == Failed && t != e.root {
			logger.Warn("Node failed alongside the root cause.", "nodeID", t.node.ID, "error", t.err)
		}
	}

	if e.root != nil {
		return e.root.err
	}
	for _, t := range e.tasks {
		if State(t.state.Load()) != Done {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("node '%s' did not complete: %w", t.node.ID, t.err)
		}
	}
	return nil
}

// Results reports the outcome of every node in topological order.
func (e *Executor) Results() []Result {
	out := make([]Result, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, Result{ID: t.node.ID, State: State(t.state.Load()), Err: t.err})
	}
	return out
}

func (e *Executor) runSequential(ctx context.Context, cancel context.CancelFunc) {
	for _, t := range e.tasks {
		if State(t.state.Load()) == Skipped {
			continue
		}
		if ctx.Err() != nil {
			e.skip(ctx, t, ctx.Err(), nil)
			continue
		}
		if err := e.execute(ctx, t); err != nil {
			e.fail(ctx, t, err, cancel, nil)
		}
	}
}

func (e *Executor) runPool(ctx context.Context, cancel context.CancelFunc) {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *task, len(e.tasks))
	roots := 0
	for _, t := range e.tasks {
		if t.depCount.Load() == 0 {
			readyChan <- t
			roots++
		}
	}
	logger.Debug("Found all root nodes.", "count", roots)

	e.wg.Add(len(e.tasks))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)
}

// worker is the processing loop of one pool worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *task, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)

	for t := range readyChan {
		if ctx.Err() != nil {
			e.skip(ctx, t, ctx.Err(), &e.wg)
			continue
		}

		if err := e.execute(ctx, t); err != nil {
			e.fail(ctx, t, err, cancel, &e.wg)
			e.wg.Done()
			continue
		}

		for _, dependent := range t.dependents {
			if dependent.depCount.Add(-1) == 0 {
				logger.Debug("Unlocking dependent node.", "nodeID", t.node.ID, "dependentID", dependent.node.ID)
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
}

func (e *Executor) execute(ctx context.Context, t *task) error {
	logger := ctxlog.FromContext(ctx).With("nodeID", t.node.ID)
	logger.Debug("Executing node.")
	t.state.Store(int32(Running))

	if err := e.fn(ctx, t.node); err != nil {
		return err
	}
	t.state.Store(int32(Done))
	logger.Debug("Node execution succeeded.")
	return nil
}

// fail records err for t, cancels the run and skips everything downstream.
// Failures caused by the run's own cancellation never become the root cause.
func (e *Executor) fail(ctx context.Context, t *task, err error, cancel context.CancelFunc, wg *sync.WaitGroup) {
	t.err = err
	t.state.Store(int32(Failed))

	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		ctxlog.FromContext(ctx).Error("Node execution failed.", "nodeID", t.node.ID, "error", err)
		e.failMu.Lock()
		if e.root == nil {
			e.root = t
		}
		e.failMu.Unlock()
	}

	cancel()
	e.skipDependents(ctx, t, wg)
}

// skip marks a node that never started and cascades to its dependents.
func (e *Executor) skip(ctx context.Context, t *task, cause error, wg *sync.WaitGroup) {
	t.skipOnce.Do(func() {
		ctxlog.FromContext(ctx).Warn("Skipping node.", "nodeID", t.node.ID, "reason", cause)
		t.err = cause
		t.state.Store(int32(Skipped))
		if wg != nil {
			wg.Done()
		}
		e.skipDependents(ctx, t, wg)
	})
}

// skipDependents recursively marks every downstream node as skipped.
func (e *Executor) skipDependents(ctx context.Context, t *task, wg *sync.WaitGroup) {
	for _, dependent := range t.dependents {
		e.skip(ctx, dependent, fmt.Errorf("skipped due to upstream failure of '%s'", t.node.ID), wg)
	}
}
