package detector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const serviceScript = "pose_service.py"

var (
	// ErrModelNotFound is returned when the pose model asset does not exist.
	ErrModelNotFound = errors.New("pose model not found")

	// ErrScriptNotFound is returned when the pose service script cannot be located.
	ErrScriptNotFound = errors.New(serviceScript + " not found")

	// ErrNotReady is returned when the pose service does not load the model.
	ErrNotReady = errors.New("pose service not ready")
)

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
// Calls are serialized: the subprocess handles one frame at a time, and d.mu
// is held for a whole exchange.
type MediaPipeDetector struct {
	config     Config
	scriptPath string
	modelPath  string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	starts     int
}

// NewMediaPipeDetector loads the pose model by starting the Python service
// and waiting for it to report the model ready. It fails if the model asset or
// the service script is missing, or if the service cannot load the model.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = def.StartupTimeout
	}

	modelPath, err := filepath.Abs(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("resolve model path: %w", err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w at %s", ErrModelNotFound, modelPath)
	}

	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findServiceScript()
	}
	if scriptPath == "" {
		return nil, ErrScriptNotFound
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("%w at %s", ErrScriptNotFound, scriptPath)
	}

	d := &MediaPipeDetector{
		config:     config,
		scriptPath: scriptPath,
		modelPath:  modelPath,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	slog.Info("pose model loaded", "model", modelPath, "script", scriptPath)

	return d, nil
}

// Detect sends an RGB frame to the pose service and returns the first pose.
//
// Cancelling ctx only abandons the wait: the exchange with the service still
// runs to completion in the background. The process is restarted only when it
// misses the per-call Timeout or the stream breaks.
func (d *MediaPipeDetector) Detect(ctx context.Context, frame *gocv.Mat) (Result, error) {
	if frame == nil || frame.Empty() {
		return NotDetected, errors.New("empty frame")
	}

	req := poseRequest{
		Width:    frame.Cols(),
		Height:   frame.Rows(),
		Channels: frame.Channels(),
		Pixels:   frame.ToBytes(),
	}

	type reply struct {
		resp poseResponse
		err  error
	}

	result := make(chan reply, 1)
	go func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		var r reply
		if err := ctx.Err(); err != nil {
			// The caller gave up while waiting for an earlier exchange.
			r.err = err
		} else if r.err = d.ensureStarted(); r.err == nil {
			r.resp, r.err = d.exchange(context.WithoutCancel(ctx), &req)
		}
		result <- r
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return NotDetected, fmt.Errorf("detect: %w", r.err)
		}
		return r.resp.toResult()
	case <-ctx.Done():
		return NotDetected, fmt.Errorf("detect: %w", ctx.Err())
	}
}

// exchange performs one request/response round trip within the per-call
// Timeout. The caller must hold d.mu.
func (d *MediaPipeDetector) exchange(ctx context.Context, req *poseRequest) (poseResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	type reply struct {
		resp poseResponse
		err  error
	}

	// The pipes are captured here so a kill below cannot race with this exchange.
	stdin, stdout := d.stdin, d.stdout
	done := make(chan reply, 1)
	go func() {
		var r reply
		if r.err = writeMessage(stdin, req); r.err == nil {
			r.err = readMessage(stdout, &r.resp)
		}
		done <- r
	}()

	select {
	case <-ctx.Done():
		slog.Warn("pose service did not answer, restarting", "timeout", d.config.Timeout)
		d.kill()
		return poseResponse{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			// The stream is out of sync or the process died; start fresh next time.
			d.kill()
		}
		return r.resp, r.err
	}
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// ensureStarted starts the service if needed and waits for its ready message
// within StartupTimeout. The caller must hold d.mu.
func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := d.config.Python
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.scriptPath, "--model", d.modelPath)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		d.cmd = nil
		return fmt.Errorf("start pose service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.starts++

	slog.Debug("pose service started", "pid", d.cmd.Process.Pid, "python", pythonPath)

	if err := d.awaitReady(); err != nil {
		d.kill()
		return err
	}
	return nil
}

// awaitReady reads the service's ready message.
func (d *MediaPipeDetector) awaitReady() error {
	stdout := d.stdout
	done := make(chan error, 1)
	go func() {
		var msg readyMessage
		if err := readMessage(stdout, &msg); err != nil {
			done <- fmt.Errorf("%w: %w", ErrNotReady, err)
			return
		}
		done <- msg.err()
	}()

	timer := time.NewTimer(d.config.StartupTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: no answer within %s", ErrNotReady, d.config.StartupTimeout)
	}
}

// shutdown closes stdin so the service exits on EOF, then waits for it.
func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	d.stdin.Close()

	waitErr := make(chan error, 1)
	go func() { waitErr <- d.cmd.Wait() }()

	var err error
	select {
	case err = <-waitErr:
	case <-time.After(5 * time.Second):
		d.cmd.Process.Kill()
		err = <-waitErr
	}

	d.reset()
	return err
}

// kill terminates the service immediately.
func (d *MediaPipeDetector) kill() {
	if !d.started {
		return
	}

	d.stdin.Close()
	d.cmd.Process.Kill()
	d.cmd.Wait()
	d.reset()
}

func (d *MediaPipeDetector) reset() {
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".posecam", "scripts", serviceScript),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".posecam/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
