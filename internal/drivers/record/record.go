// Package record implements the CCTV recording driver described in
// spec.md §4.5: wait for the scheduled window, resolve the stream to
// an HLS URL, record it with ffmpeg under an explicit wall-clock
// deadline, and register the result.
//
// Grounded on
// original_source/cctv_recanalyzer/srv/cctv_record_ffmpeg.py's
// task_func, reshaped from a Python thread polling a dict of booleans
// into a supervisor.Driver polling supervisor.Control.Canceled().
package record

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/ffmpegrun"
	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/stream"
	"github.com/shythm/road-cctv-recanalyzer/internal/supervisor"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
)

// Name is the driver label reported to the task-service facade and
// stored on every Task this driver produces.
const Name = "cctv-record"

// Driver implements supervisor.Driver for the recording workflow.
type Driver struct {
	Streams      *stream.Catalog
	Resolver     *stream.Resolver
	Outputs      *output.Catalog
	OutputsPath  string
	Runner       *ffmpegrun.Runner
	PollInterval time.Duration
}

// New builds a Record driver. pollInterval is the wait-phase tick,
// capped at 1s by waitForWindow; the supervise loop ticks every 1s
// regardless of pollInterval (spec.md §4.5).
func New(streams *stream.Catalog, resolver *stream.Resolver, outputs *output.Catalog, outputsPath string, runner *ffmpegrun.Runner, pollInterval time.Duration) *Driver {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Driver{
		Streams:      streams,
		Resolver:     resolver,
		Outputs:      outputs,
		OutputsPath:  outputsPath,
		Runner:       runner,
		PollInterval: pollInterval,
	}
}

type waitResult struct {
	code int
	err  error
}

// Run executes the full timeline of spec.md §4.5 for one task.
func (d *Driver) Run(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) error {
	startat, err := time.Parse(time.RFC3339, t.Params["startat"])
	if err != nil {
		return taskmodel.NewValidation("startat is not a valid ISO-8601 timestamp")
	}
	endat, err := time.Parse(time.RFC3339, t.Params["endat"])
	if err != nil {
		return taskmodel.NewValidation("endat is not a valid ISO-8601 timestamp")
	}
	cctvName := t.Params["cctv"]

	if err := d.waitForWindow(ctl, startat, endat); err != nil {
		return err
	}

	s, err := d.Streams.GetByName(cctvName)
	if err != nil {
		return err
	}
	hlsURL, err := d.Resolver.ResolveHLS(ctx, s)
	if err != nil {
		return err
	}

	duration := int(math.Round(time.Until(endat).Seconds()))
	if duration < 1 {
		duration = 1
	}

	outputPath := filepath.Join(d.OutputsPath, t.ID+".mp4")
	logPath := filepath.Join(d.OutputsPath, t.ID+".log")
	errPath := filepath.Join(d.OutputsPath, t.ID+".err")

	stdout, err := os.Create(logPath)
	if err != nil {
		return taskmodel.NewExternal("failed to open ffmpeg log sink", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(errPath)
	if err != nil {
		return taskmodel.NewExternal("failed to open ffmpeg error sink", err)
	}
	defer stderr.Close()

	args := []string{"-i", hlsURL, "-c", "copy", "-t", strconv.Itoa(duration), outputPath}
	proc, err := d.Runner.Start(args, stdout, stderr)
	if err != nil {
		return err
	}

	result, cancelErr := d.superviseLoop(ctl, proc, startat, endat)
	if cancelErr != nil {
		return cancelErr
	}
	if result.err != nil {
		return result.err
	}

	stdout.Close()
	stderr.Close()

	if result.code == 0 {
		return d.finalizeSuccess(t, cctvName, outputPath, logPath, errPath, ctl)
	}
	return d.finalizeFailure(t, cctvName, outputPath, logPath, errPath, result.code)
}

// waitForWindow blocks until startat per spec.md §4.5 step 1.
func (d *Driver) waitForWindow(ctl supervisor.Control, startat, endat time.Time) error {
	tick := d.PollInterval
	if tick > time.Second {
		tick = time.Second
	}
	for {
		now := time.Now()
		if !now.Before(endat) {
			return taskmodel.NewValidation("recording window already past")
		}
		if !now.Before(startat) {
			return nil
		}
		if ctl.Canceled() {
			return taskmodel.NewCancel("recording canceled before it began")
		}
		time.Sleep(tick)
	}
}

// superviseLoop implements spec.md §4.5 step 4: progress reporting at
// a ≥1s tick and cancellation delivered as SIGTERM plus an immediate
// cancel sentinel, matching the original's "send signal then raise."
func (d *Driver) superviseLoop(ctl supervisor.Control, proc *ffmpegrun.Process, startat, endat time.Time) (waitResult, error) {
	done := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		done <- waitResult{code: code, err: err}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	total := endat.Sub(startat).Seconds()
	for {
		select {
		case r := <-done:
			return r, nil
		case <-ticker.C:
			if total > 0 {
				frac := time.Since(startat).Seconds() / total
				if frac > 1 {
					frac = 1
				}
				if frac < 0 {
					frac = 0
				}
				ctl.Progress(frac)
			}
			if ctl.Canceled() {
				_ = proc.Stop()
				return waitResult{}, taskmodel.NewCancel("recording canceled by request")
			}
		}
	}
}

func (d *Driver) finalizeSuccess(t *taskmodel.Task, cctvName, outputPath, logPath, errPath string, ctl supervisor.Control) error {
	if err := d.Outputs.Save(&taskmodel.Output{
		Name:      t.ID + ".mp4",
		Type:      taskmodel.MediaVideoMP4,
		Desc:      fmt.Sprintf("%s recording", cctvName),
		TaskID:    t.ID,
		Metadata:  t.Params,
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}
	_ = os.Remove(logPath)
	_ = os.Remove(errPath)
	ctl.Progress(1.0)
	return nil
}

func (d *Driver) finalizeFailure(t *taskmodel.Task, cctvName, outputPath, logPath, errPath string, exitCode int) error {
	if err := d.Outputs.Save(&taskmodel.Output{
		Name:      t.ID + ".log",
		Type:      taskmodel.MediaTextStdout,
		Desc:      fmt.Sprintf("%s recording stdout", cctvName),
		TaskID:    t.ID,
		Metadata:  t.Params,
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}
	if err := d.Outputs.Save(&taskmodel.Output{
		Name:      t.ID + ".err",
		Type:      taskmodel.MediaTextStderr,
		Desc:      fmt.Sprintf("%s recording stderr", cctvName),
		TaskID:    t.ID,
		Metadata:  t.Params,
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}
	_ = os.Remove(outputPath)
	return fmt.Errorf("ffmpeg exited with status %d", exitCode)
}
