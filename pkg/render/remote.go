package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CallbackSecretHeader carries the shared secret the renderer must echo on
// every callback.
const CallbackSecretHeader = "X-Callback-Secret"

// ErrNoPendingRender is returned by Deliver when no render is waiting for
// the callback's project id.
var ErrNoPendingRender = errors.New("no pending render for project")

type rendererRequest struct {
	ProjectID      string `json:"project_id"`
	ScriptContent  string `json:"script_content"`
	CallbackURL    string `json:"callback_url"`
	CallbackSecret string `json:"callback_secret,omitempty"`
}

// CallbackUpdate is posted by the renderer service to the callback URL.
// Status is "progress" or "rendering" while running, then "completed" or a
// failure status.
type CallbackUpdate struct {
	ProjectID    string `json:"project_id" binding:"required"`
	Status       string `json:"status" binding:"required"`
	VideoURL     string `json:"video_url"`
	Progress     *int   `json:"progress"`
	Message      string `json:"message"`
	ErrorDetails string `json:"error_details"`
}

func (u CallbackUpdate) terminal() bool {
	switch u.Status {
	case "progress", "rendering", "processing":
		return false
	}
	return true
}

type waiter struct {
	updates chan CallbackUpdate
	done    chan struct{}
}

// Remote hands code to an external renderer service and waits for its
// callback.
type Remote struct {
	rendererURL string
	callbackURL string
	secret      string
	timeout     time.Duration
	httpClient  *http.Client

	mu      sync.Mutex
	waiters map[uuid.UUID]*waiter
}

func NewRemote(rendererURL, callbackURL, secret string, timeout time.Duration) *Remote {
	return &Remote{
		rendererURL: strings.TrimRight(rendererURL, "/"),
		callbackURL: callbackURL,
		secret:      secret,
		timeout:     timeout,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		waiters:     make(map[uuid.UUID]*waiter),
	}
}

// CallbackURL builds the URL the renderer posts back to. Loopback hosts are
// swapped for host.docker.internal so a containerised renderer can reach us.
func CallbackURL(host, port string) string {
	if host == "127.0.0.1" || host == "0.0.0.0" || host == "localhost" {
		host = "host.docker.internal"
	}
	return fmt.Sprintf("http://%s:%s/api/projects/render-callback", host, port)
}

func (r *Remote) Render(ctx context.Context, animationID uuid.UUID, code string, onProgress ProgressFunc) (string, error) {
	w := r.register(animationID)
	defer r.unregister(animationID, w)

	if err := r.trigger(ctx, animationID, code); err != nil {
		return "", apperr.RenderError("Trigger", err)
	}
	log.WithField("animation_id", animationID).Info("Renderer accepted render request")

	progress := newProgressReporter(onProgress)
	progress.report(0)

	var timeout <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return "", apperr.RenderError("Wait", ctx.Err())
		case <-timeout:
			return "", apperr.RenderError("Wait", fmt.Errorf("render timed out after %s", r.timeout))
		case u := <-w.updates:
			if u.Progress != nil {
				progress.report(*u.Progress)
			}
			if !u.terminal() {
				continue
			}
			if u.Status != "completed" {
				return "", apperr.RenderError("Wait", errors.New(failureMessage(u)))
			}
			if u.VideoURL == "" || u.VideoURL == "N/A" {
				return "", apperr.RenderError("Wait", errors.New("renderer completed without a video URL"))
			}
			progress.report(100)
			return u.VideoURL, nil
		}
	}
}

func (r *Remote) trigger(ctx context.Context, animationID uuid.UUID, code string) error {
	body, err := json.Marshal(rendererRequest{
		ProjectID:      animationID.String(),
		ScriptContent:  code,
		CallbackURL:    r.callbackURL,
		CallbackSecret: r.secret,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.rendererURL+"/render", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request to renderer: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Manim renderer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var errorResp map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errorResp)
		errMsg := errorResp["error"]
		if errMsg == "" {
			errMsg = "unknown error from renderer"
		}
		return fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, errMsg)
	}
	return nil
}

// Deliver routes a renderer callback to the render waiting on it. Progress
// updates are dropped when the waiter is behind.
func (r *Remote) Deliver(u CallbackUpdate) error {
	id, err := uuid.Parse(u.ProjectID)
	if err != nil {
		return fmt.Errorf("invalid project id %q: %w", u.ProjectID, err)
	}
	r.mu.Lock()
	w, ok := r.waiters[id]
	r.mu.Unlock()
	if !ok {
		return ErrNoPendingRender
	}

	if !u.terminal() {
		select {
		case w.updates <- u:
		case <-w.done:
			return ErrNoPendingRender
		default:
		}
		return nil
	}
	select {
	case w.updates <- u:
		return nil
	case <-w.done:
		return ErrNoPendingRender
	}
}

func (r *Remote) register(id uuid.UUID) *waiter {
	w := &waiter{updates: make(chan CallbackUpdate, 16), done: make(chan struct{})}
	r.mu.Lock()
	r.waiters[id] = w
	r.mu.Unlock()
	return w
}

func (r *Remote) unregister(id uuid.UUID, w *waiter) {
	r.mu.Lock()
	if r.waiters[id] == w {
		delete(r.waiters, id)
	}
	r.mu.Unlock()
	close(w.done)
}

func failureMessage(u CallbackUpdate) string {
	switch {
	case u.ErrorDetails != "":
		return u.ErrorDetails
	case u.Message != "":
		return u.Message
	default:
		return "render " + u.Status
	}
}
