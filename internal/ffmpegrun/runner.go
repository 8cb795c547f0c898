// Package ffmpegrun launches and supervises ffmpeg subprocesses for the
// Record driver. Grounded on cxumol-FFwebAPI/ffmpeg.Runner's
// exec.CommandContext usage, trimmed of the teacher's user-supplied
// command templating (this service builds its own argument vectors,
// it never interpolates an operator-submitted command string) and
// extended with a graceful SIGTERM stop instead of the context
// cancellation the teacher relies on, per spec.md §4.5 step 4's
// "send a graceful termination signal" requirement.
package ffmpegrun

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
)

// Runner locates and launches a single ffmpeg binary.
type Runner struct {
	bin string
}

// NewRunner verifies bin is on PATH and returns a Runner bound to it.
func NewRunner(bin string) (*Runner, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, taskmodel.NewExternal(fmt.Sprintf("ffmpeg binary not found on PATH: %s", bin), err)
	}
	return &Runner{bin: bin}, nil
}

// Process wraps a running ffmpeg subprocess.
type Process struct {
	cmd *exec.Cmd
}

// Start spawns ffmpeg with the given arguments, stdin nulled and
// stdout/stderr directed to the given sinks (spec.md §4.5 step 3).
func (r *Runner) Start(args []string, stdout, stderr io.Writer) (*Process, error) {
	cmd := exec.Command(r.bin, args...)
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, taskmodel.NewExternal("failed to start ffmpeg", err)
	}
	return &Process{cmd: cmd}, nil
}

// Wait blocks until the process exits and returns its exit code (0 for
// a clean exit, nonzero otherwise). A process killed by a signal the
// caller itself sent via Stop is also reported through this code path.
func (p *Process) Wait() (exitCode int, err error) {
	waitErr := p.cmd.Wait()
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, taskmodel.NewExternal("ffmpeg process wait failed", waitErr)
}

// Stop sends SIGTERM, giving ffmpeg the chance to flush and close its
// output file cleanly instead of leaving a corrupt partial mp4; the
// driver still treats the resulting exit as the cancellation path, not
// a failure, per spec.md §4.5 step 6.
func (p *Process) Stop() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && err != os.ErrProcessDone {
		return taskmodel.NewExternal("failed to signal ffmpeg process", err)
	}
	return nil
}

// Pid returns the subprocess's process id, 0 if not started.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
