package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/manim"
	"github.com/ASHISH26940/manim-studio/pkg/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var progressRe = regexp.MustCompile(`(\d{1,3})%`)

// Local renders by running the manim CLI as a subprocess.
type Local struct {
	python  string
	workDir string
	timeout time.Duration
	store   storage.VideoStore

	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewLocal(python, workDir string, timeout time.Duration, store storage.VideoStore) *Local {
	return &Local{
		python:  python,
		workDir: workDir,
		timeout: timeout,
		store:   store,
		command: exec.CommandContext,
	}
}

func (l *Local) Render(ctx context.Context, animationID uuid.UUID, code string, onProgress ProgressFunc) (string, error) {
	scene := manim.SceneClassName(code)
	if scene == "" {
		return "", apperr.RenderError("Render", errors.New("could not extract scene class name from Manim code"))
	}

	scriptsDir := filepath.Join(l.workDir, "scripts")
	mediaDir := filepath.Join(l.workDir, "media", animationID.String())
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return "", apperr.RenderError("Render", fmt.Errorf("failed to create scripts directory: %w", err))
	}
	defer os.RemoveAll(mediaDir)

	name := videoName(animationID)
	scriptPath := filepath.Join(scriptsDir, fmt.Sprintf("%s_%d.py", name, time.Now().UnixMilli()))
	if err := os.WriteFile(scriptPath, []byte(code), 0o644); err != nil {
		return "", apperr.RenderError("Render", fmt.Errorf("failed to write Manim script: %w", err))
	}
	defer os.Remove(scriptPath)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	progress := newProgressReporter(onProgress)
	progress.report(0)

	cmd := l.command(ctx, l.python, "-m", "manim", scriptPath, scene,
		"-o", name, "--format", "mp4", "--media_dir", mediaDir)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", apperr.RenderError("Render", err)
	}

	log.WithFields(log.Fields{"animation_id": animationID, "scene": scene}).Info("Starting manim render")
	if err := cmd.Start(); err != nil {
		return "", apperr.RenderError("Render", fmt.Errorf("failed to start manim: %w", err))
	}
	tail := scanProgress(stderr, progress.report)
	waitErr := cmd.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", apperr.RenderError("Render", fmt.Errorf("render timed out after %s", l.timeout))
	}
	if waitErr != nil {
		msg := strings.Join(tail, "\n")
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", apperr.RenderError("Render", fmt.Errorf("manim exited with error: %v: %s", waitErr, msg))
	}

	output, err := findVideo(mediaDir, name+".mp4")
	if err != nil {
		return "", apperr.RenderError("Render", err)
	}
	ref, err := l.store.Save(ctx, name+".mp4", output)
	if err != nil {
		return "", apperr.RenderError("Save", err)
	}
	progress.report(100)
	return ref, nil
}

// scanProgress reads manim's stderr, reporting every NN% it sees, and returns
// the last few lines that were not progress output.
func scanProgress(r io.Reader, report func(int)) []string {
	const keep = 5
	var tail []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(scanLinesOrCR)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if m := progressRe.FindAllStringSubmatch(line, -1); m != nil {
			if v, err := strconv.Atoi(m[len(m)-1][1]); err == nil {
				report(v)
			}
			continue
		}
		tail = append(tail, line)
		if len(tail) > keep {
			tail = tail[1:]
		}
	}
	return tail
}

// scanLinesOrCR splits on \n or \r since progress bars redraw with \r.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func findVideo(root, filename string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == filename {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to locate rendered video: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("manim finished but produced no %s", filename)
	}
	return found, nil
}
