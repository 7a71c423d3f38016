// Package script runs self-contained build procedures through a shell.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/vk/moveboot/internal/ctxlog"
)

const (
	// DefaultRootVar names the variable holding the environment root.
	DefaultRootVar = "MOVEMENT_DIR"
	// DefaultMaxOutput bounds the captured output tail in bytes.
	DefaultMaxOutput = 16 << 10
	// killGrace is how long a canceled procedure has to exit after SIGKILL
	// before its pipes are closed.
	killGrace = 2 * time.Second
)

// ErrExit is returned when a procedure exits with a non-zero status.
var ErrExit = errors.New("procedure exited with non-zero status")

// Procedure is one build procedure to run.
type Procedure struct {
	Name string
	Body string
	// Dir is the working directory and the value of the root variable.
	Dir string
	Env map[string]string
}

// Result holds what a procedure produced.
type Result struct {
	// Output is the interleaved stdout and stderr tail.
	Output   []byte
	ExitCode int
}

// Runner executes build procedures.
type Runner interface {
	Run(ctx context.Context, p Procedure) (Result, error)
}

// Shell runs procedures as "<Path> <Args...> <body>".
type Shell struct {
	Path      string
	Args      []string
	RootVar   string
	MaxOutput int
}

// NewShell returns a Shell running bodies with "bash -c".
func NewShell() *Shell {
	return &Shell{Path: "bash", Args: []string{"-c"}, RootVar: DefaultRootVar, MaxOutput: DefaultMaxOutput}
}

// Run implements Runner. The procedure inherits the process environment plus
// the root variable and p.Env. A canceled ctx kills the whole process group.
func (s *Shell) Run(ctx context.Context, p Procedure) (Result, error) {
	logger := ctxlog.FromContext(ctx).With("procedure", p.Name)

	if p.Body == "" {
		return Result{}, fmt.Errorf("procedure '%s' has an empty body", p.Name)
	}
	path := s.Path
	if path == "" {
		path = "bash"
	}
	args := []string{"-c", p.Body}
	if len(s.Args) > 0 {
		args = append(append([]string{}, s.Args...), p.Body)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = p.Dir
	cmd.Env = s.environ(p)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = killGrace

	max := s.MaxOutput
	if max <= 0 {
		max = DefaultMaxOutput
	}
	out := newTailBuffer(max)
	cmd.Stdout = out
	cmd.Stderr = out

	logger.Debug("Running build procedure.", "dir", p.Dir, "shell", path)
	start := time.Now()
	err := cmd.Run()
	res := Result{Output: out.Bytes(), ExitCode: cmd.ProcessState.ExitCode()}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("procedure '%s' canceled: %w", p.Name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, fmt.Errorf("%w: %d", ErrExit, exitErr.ExitCode())
		}
		return res, fmt.Errorf("failed to run procedure '%s': %w", p.Name, err)
	}

	logger.Debug("Build procedure finished.", "duration", time.Since(start))
	return res, nil
}

func (s *Shell) environ(p Procedure) []string {
	env := os.Environ()
	rootVar := s.RootVar
	if rootVar == "" {
		rootVar = DefaultRootVar
	}
	if p.Dir != "" {
		env = append(env, rootVar+"="+p.Dir)
	}

	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+p.Env[k])
	}
	return env
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.max {
		b.buf = append(b.buf[:0], p[n-b.max:]...)
		return n, nil
	}
	if over := len(b.buf) + n - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}
