package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/storage"
	"github.com/google/uuid"
)

const sceneCode = "from manim import *\n\nclass Grow(Scene):\n    def construct(self):\n        self.wait(1)\n"

type progressLog struct {
	mu   sync.Mutex
	seen []int
}

func (p *progressLog) add(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, v)
}

func (p *progressLog) values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.seen...)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScanProgress(t *testing.T) {
	input := "Manim Community v0.18\nAnimation 0: Create(Circle):  10%|#  \rAnimation 0:  45%|####\r" +
		"Animation 0: 45%\rAnimation 1: 130%\nTraceback (most recent call last):\nValueError: bad\n"
	var log progressLog
	p := newProgressReporter(log.add)

	tail := scanProgress(strings.NewReader(input), p.report)

	if got := log.values(); !equalInts(got, []int{10, 45, 100}) {
		t.Fatalf("progress=%v, want [10 45 100]", got)
	}
	want := []string{"Manim Community v0.18", "Traceback (most recent call last):", "ValueError: bad"}
	if strings.Join(tail, "|") != strings.Join(want, "|") {
		t.Fatalf("tail=%q, want %q", tail, want)
	}
}

// fakeManim stands in for the manim CLI: it prints progress to stderr and
// writes the mp4 where manim would.
func fakeManim(t *testing.T, exitCode int) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	t.Helper()
	return func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		var mediaDir, out string
		for i := 0; i < len(args)-1; i++ {
			switch args[i] {
			case "--media_dir":
				mediaDir = args[i+1]
			case "-o":
				out = args[i+1]
			}
		}
		dir := filepath.Join(mediaDir, "videos", "scene", "1080p60")
		script := `printf 'Animation 0: 20%%\rAnimation 0: 80%%\r' 1>&2; ` +
			`mkdir -p "$1" && printf 'mp4' > "$1/$2.mp4"`
		if exitCode != 0 {
			script = `echo 'NameError: name Foo is not defined' 1>&2; exit 1`
		}
		return exec.CommandContext(ctx, "sh", "-c", script, "sh", dir, out)
	}
}

func TestLocalRender_Succeeds(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	work := t.TempDir()
	store, err := storage.NewLocal(filepath.Join(work, "videos"))
	if err != nil {
		t.Fatalf("NewLocal() err=%v", err)
	}
	l := NewLocal("python", work, time.Minute, store)
	l.command = fakeManim(t, 0)
	id := uuid.New()
	var log progressLog

	ref, err := l.Render(context.Background(), id, sceneCode, log.add)
	if err != nil {
		t.Fatalf("Render() err=%v", err)
	}
	if want := "/api/videos/animation_" + id.String() + ".mp4"; ref != want {
		t.Fatalf("Render()=%q, want %q", ref, want)
	}
	if got := log.values(); !equalInts(got, []int{0, 20, 80, 100}) {
		t.Fatalf("progress=%v", got)
	}
	if _, err := os.Stat(filepath.Join(work, "videos", "animation_"+id.String()+".mp4")); err != nil {
		t.Fatalf("stored video missing: %v", err)
	}
}

func TestLocalRender_Failure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	store, _ := storage.NewLocal(t.TempDir())
	l := NewLocal("python", t.TempDir(), time.Minute, store)
	l.command = fakeManim(t, 1)

	_, err := l.Render(context.Background(), uuid.New(), sceneCode, nil)
	if !errors.Is(err, apperr.ErrBackend) || !strings.Contains(err.Error(), "NameError") {
		t.Fatalf("Render() err=%v, want backend error with manim output", err)
	}

	_, err = l.Render(context.Background(), uuid.New(), "print('x')", nil)
	var be *apperr.BackendError
	if !errors.As(err, &be) || be.Stage != "rendering" {
		t.Fatalf("Render(no scene) err=%v", err)
	}
}

func rendererServer(t *testing.T, status int, got chan<- rendererRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("path=%s, want /render", r.URL.Path)
		}
		var req rendererRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if got != nil {
			got <- req
		}
		w.WriteHeader(status)
		if status != http.StatusAccepted {
			_, _ = w.Write([]byte(`{"error":"renderer busy"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteRender_CompletesViaCallback(t *testing.T) {
	requests := make(chan rendererRequest, 1)
	srv := rendererServer(t, http.StatusAccepted, requests)
	r := NewRemote(srv.URL, "http://api:8080/api/projects/render-callback", "s3cret", time.Minute)
	id := uuid.New()
	var log progressLog

	type result struct {
		ref string
		err error
	}
	done := make(chan result, 1)
	go func() {
		ref, err := r.Render(context.Background(), id, sceneCode, log.add)
		done <- result{ref, err}
	}()

	req := <-requests
	if req.ProjectID != id.String() || req.ScriptContent != sceneCode || req.CallbackURL == "" || req.CallbackSecret != "s3cret" {
		t.Fatalf("renderer request=%+v", req)
	}
	half := 50
	if err := r.Deliver(CallbackUpdate{ProjectID: id.String(), Status: "progress", Progress: &half}); err != nil {
		t.Fatalf("Deliver(progress) err=%v", err)
	}
	if err := r.Deliver(CallbackUpdate{ProjectID: id.String(), Status: "completed", VideoURL: "https://cdn/video.mp4"}); err != nil {
		t.Fatalf("Deliver(completed) err=%v", err)
	}

	res := <-done
	if res.err != nil || res.ref != "https://cdn/video.mp4" {
		t.Fatalf("Render()=%q, %v", res.ref, res.err)
	}
	if got := log.values(); !equalInts(got, []int{0, 50, 100}) {
		t.Fatalf("progress=%v", got)
	}
	if err := r.Deliver(CallbackUpdate{ProjectID: id.String(), Status: "completed"}); !errors.Is(err, ErrNoPendingRender) {
		t.Fatalf("Deliver(after finish) err=%v, want ErrNoPendingRender", err)
	}
}

func TestRemoteRender_FailedCallback(t *testing.T) {
	requests := make(chan rendererRequest, 1)
	srv := rendererServer(t, http.StatusAccepted, requests)
	r := NewRemote(srv.URL, "cb", "", time.Minute)
	id := uuid.New()

	errc := make(chan error, 1)
	go func() {
		_, err := r.Render(context.Background(), id, sceneCode, nil)
		errc <- err
	}()
	<-requests
	_ = r.Deliver(CallbackUpdate{ProjectID: id.String(), Status: "failed", ErrorDetails: "LaTeX not installed"})

	err := <-errc
	if !errors.Is(err, apperr.ErrBackend) || err.Error() != "LaTeX not installed" {
		t.Fatalf("Render() err=%v", err)
	}
}

func TestRemoteRender_RejectedAndTimeout(t *testing.T) {
	srv := rendererServer(t, http.StatusServiceUnavailable, nil)
	r := NewRemote(srv.URL, "cb", "", time.Minute)
	_, err := r.Render(context.Background(), uuid.New(), sceneCode, nil)
	if err == nil || !strings.Contains(err.Error(), "renderer busy") {
		t.Fatalf("Render(rejected) err=%v", err)
	}

	ok := rendererServer(t, http.StatusAccepted, nil)
	r = NewRemote(ok.URL, "cb", "", 20*time.Millisecond)
	_, err = r.Render(context.Background(), uuid.New(), sceneCode, nil)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Render(timeout) err=%v", err)
	}
}

func TestCallbackURL(t *testing.T) {
	if got := CallbackURL("127.0.0.1", "8080"); got != "http://host.docker.internal:8080/api/projects/render-callback" {
		t.Fatalf("CallbackURL(loopback)=%q", got)
	}
	if got := CallbackURL("api", "9000"); got != "http://api:9000/api/projects/render-callback" {
		t.Fatalf("CallbackURL(api)=%q", got)
	}
}
