package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// ScriptName is the MediaPipe Pose helper run as a subprocess.
const ScriptName = "pose_service.py"

// MediaPipeEstimator implements Estimator using a Python MediaPipe Pose subprocess.
// Frames are written to stdin as a 4-byte big-endian length followed by a JPEG,
// and each frame is answered with a single JSON line on stdout.
type MediaPipeEstimator struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
}

// StartMediaPipe launches the helper and waits for it to report that the model is loaded.
// The context bounds the startup handshake only.
func StartMediaPipe(ctx context.Context, config Config) (*MediaPipeEstimator, error) {
	scriptPath := findScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", ScriptName)
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, append([]string{scriptPath}, config.args()...)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pose service: %w", err)
	}

	e := &MediaPipeEstimator{
		config: config,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}

	if err := e.handshake(ctx); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

// args renders the model knobs as helper flags. Selfie mode is always off.
func (c Config) args() []string {
	args := []string{
		"--min-detection-confidence", strconv.FormatFloat(c.MinDetectionConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(c.MinTrackingConfidence, 'f', -1, 64),
		"--model-complexity", strconv.Itoa(c.ModelComplexity),
	}
	if c.SmoothLandmarks {
		args = append(args, "--smooth-landmarks")
	}
	return args
}

// handshake reads the first status line emitted after the model loads.
func (e *MediaPipeEstimator) handshake(ctx context.Context) error {
	type status struct {
		Ready bool   `json:"ready"`
		Error string `json:"error"`
	}

	done := make(chan error, 1)
	go func() {
		line, err := e.stdout.ReadString('\n')
		if err != nil {
			done <- fmt.Errorf("read handshake: %w", err)
			return
		}
		var st status
		if err := json.Unmarshal([]byte(line), &st); err != nil {
			done <- fmt.Errorf("parse handshake: %w", err)
			return
		}
		if !st.Ready {
			done <- fmt.Errorf("pose service: %s", st.Error)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Unblocks the reader goroutine.
		e.cmd.Process.Kill()
		return ctx.Err()
	}
}

// Estimate sends one frame to the helper and returns its landmarks.
func (e *MediaPipeEstimator) Estimate(frame *gocv.Mat) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return nil, ErrNotReady
	}
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := e.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("%w: write length: %w", ErrHelperExited, err)
	}
	if _, err := e.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("%w: write data: %w", ErrHelperExited, err)
	}

	line, err := e.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrHelperExited, err)
	}

	var response jsonResult
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("pose service: %s", response.Error)
	}

	return response.toResult(), nil
}

// Close shuts down the Python process.
func (e *MediaPipeEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return nil
	}

	if e.stdin != nil {
		e.stdin.Close()
	}

	err := e.cmd.Wait()
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil

	return err
}

func findScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ScriptName),
		filepath.Join("..", "scripts", ScriptName),
		filepath.Join(execDir, "scripts", ScriptName),
		filepath.Join(os.Getenv("HOME"), ".swipeshot", "scripts", ScriptName),
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
		filepath.Join(os.Getenv("HOME"), ".swipeshot/venv/bin/python"),
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

// jsonResult represents the JSON line emitted by the Python service.
type jsonResult struct {
	Landmarks []Landmark `json:"landmarks"`
	Score     float64    `json:"score"`
	Error     string     `json:"error"`
}

func (r jsonResult) toResult() *Result {
	if len(r.Landmarks) == 0 {
		return nil
	}

	n := len(r.Landmarks)
	if n > NumLandmarks {
		n = NumLandmarks
	}
	lms := make(Landmarks, n)
	copy(lms, r.Landmarks)

	return &Result{Landmarks: lms, Score: r.Score}
}
