package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/querylab/analyst/conf"
)

var ErrRunFailed = errors.New("run failed")

// Spec describes one script to execute inside a task workspace.
type Spec struct {
	Name      string
	Code      string
	Libraries []string
	Dir       string
}

type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

func NewPythonRunner(cfg conf.Executor) Runner {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Minute
	}

	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 64 * 1024
	}

	return &pythonRunner{
		cfg:       cfg,
		installed: make(map[string]bool),
	}
}

type pythonRunner struct {
	cfg conf.Executor

	mu        sync.Mutex
	installed map[string]bool
}

func (r *pythonRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if strings.TrimSpace(spec.Code) == "" {
		return nil, fmt.Errorf("%w: empty script", ErrRunFailed)
	}

	if spec.Name == "" {
		spec.Name = "script"
	}

	script := filepath.Join(spec.Dir, spec.Name+".py")
	if err := os.WriteFile(script, []byte(spec.Code), 0o644); err != nil {
		return nil, err
	}

	if r.cfg.PipInstall {
		if out, err := r.install(ctx, spec.Libraries); err != nil {
			return &Result{Output: out}, fmt.Errorf("%w: %v", ErrRunFailed, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(ctx, r.cfg.Python, script)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")

	out, err := cmd.CombinedOutput()

	result := &Result{
		Output:   tail(string(out), r.cfg.MaxOutputBytes),
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.ExitCode = -1
			return result, fmt.Errorf("%w: %s timed out after %s", ErrRunFailed, spec.Name, r.cfg.Timeout)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%w: %s exited with code %d", ErrRunFailed, spec.Name, result.ExitCode)
		}

		return result, fmt.Errorf("%w: %s: %v", ErrRunFailed, spec.Name, err)
	}

	return result, nil
}

// install pip-installs the libraries a generated script declares.
// Successful installs are remembered so repeated tasks skip the work.
func (r *pythonRunner) install(ctx context.Context, libraries []string) (string, error) {
	for _, lib := range libraries {
		lib = strings.TrimSpace(lib)
		if lib == "" {
			continue
		}

		r.mu.Lock()
		done := r.installed[lib]
		r.mu.Unlock()

		if done {
			continue
		}

		cmd := exec.CommandContext(ctx, r.cfg.Python, "-m", "pip", "install", "--quiet", lib)
		if out, err := cmd.CombinedOutput(); err != nil {
			return tail(string(out), r.cfg.MaxOutputBytes), fmt.Errorf("pip install %s: %v", lib, err)
		}

		r.mu.Lock()
		r.installed[lib] = true
		r.mu.Unlock()
	}

	return "", nil
}

func tail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}

	return s[len(s)-max:]
}
