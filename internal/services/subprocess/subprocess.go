// Package subprocess runs external tools with line-scanned output and
// process-group teardown. The extraction engine spawns its own ffmpeg
// children, so cancellation must signal the whole group or orphans keep
// writing into the work directory.
package subprocess

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

// GroupExecutor executes commands in a dedicated process group and escalates
// SIGTERM to SIGKILL when the group outlives the grace period after context
// cancellation.
type GroupExecutor struct {
	KillGrace time.Duration
}

// New returns an executor with the default 5 second kill grace.
func New() GroupExecutor {
	return GroupExecutor{KillGrace: 5 * time.Second}
}

// Run starts the binary, forwards each stdout and stderr line to the
// callbacks, and waits for exit. When ctx is cancelled the process group is
// terminated and ctx.Err() is returned.
func (e GroupExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	cmd := exec.Command(binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	var wg sync.WaitGroup
	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if forward != nil {
				forward(scanner.Text())
			}
		}
	}
	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)

	pgid := cmd.Process.Pid
	grace := e.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = unix.Kill(-pgid, unix.SIGTERM)
			select {
			case <-done:
			case <-time.After(grace):
				_ = unix.Kill(-pgid, unix.SIGKILL)
			}
		case <-done:
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	close(done)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitErr != nil {
		return fmt.Errorf("%s: %w", binary, waitErr)
	}
	return nil
}
