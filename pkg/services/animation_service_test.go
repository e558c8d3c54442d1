package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/ASHISH26940/manim-studio/pkg/db/memory"
	"github.com/google/uuid"
)

type submission struct {
	animationID uuid.UUID
	model       db.AIModel
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []submission
}

func (f *fakeSubmitter) Submit(animationID uuid.UUID, model db.AIModel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, submission{animationID, model})
}

func newAnimationFixture(t *testing.T, quota int) (*AnimationService, *memory.Store, *fakeSubmitter, *db.User) {
	t.Helper()
	store := memory.New()
	user, err := store.CreateUser(context.Background(), &db.User{Username: "ada", Email: "ada@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateUser() err=%v", err)
	}
	if err := store.SetUserGenerations(context.Background(), user.ID, quota); err != nil {
		t.Fatalf("SetUserGenerations() err=%v", err)
	}
	sub := &fakeSubmitter{}
	svc := NewAnimationService(store, sub)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, store, sub, user
}

func validCreateInput() CreateAnimationInput {
	return CreateAnimationInput{
		Prompt:   "Explain the Pythagorean theorem visually",
		Title:    "Pythagoras",
		AIModel:  "groq",
		Duration: 20,
	}
}

func TestCreate_SubmitsAndSpendsOneGeneration(t *testing.T) {
	ctx := context.Background()
	svc, store, sub, user := newAnimationFixture(t, 10)

	animation, tasks, err := svc.Create(ctx, user.ID, validCreateInput())
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	if animation.Status != db.StatusPending || animation.AIModel != db.ModelGroq || animation.Duration != 20 {
		t.Fatalf("animation=%+v", animation)
	}
	if len(tasks) != 3 {
		t.Fatalf("len(tasks)=%d, want 3", len(tasks))
	}
	for i, task := range tasks {
		if task.TaskType != db.TaskTypes[i] || task.Status != db.StatusPending {
			t.Fatalf("tasks[%d]=%+v", i, task)
		}
	}
	if len(sub.calls) != 1 || sub.calls[0] != (submission{animation.ID, db.ModelGroq}) {
		t.Fatalf("submissions=%+v", sub.calls)
	}
	got, _ := store.FindUserByID(ctx, user.ID)
	if got.GenerationsRemaining != 9 {
		t.Fatalf("GenerationsRemaining=%d, want 9", got.GenerationsRemaining)
	}
}

func TestCreate_DefaultsTitle(t *testing.T) {
	svc, _, _, user := newAnimationFixture(t, 10)
	in := validCreateInput()
	in.Title = "   "

	animation, _, err := svc.Create(context.Background(), user.ID, in)
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	if animation.Title != "Animation 1700000000000" {
		t.Fatalf("Title=%q", animation.Title)
	}
}

func TestCreate_QuotaExhausted(t *testing.T) {
	ctx := context.Background()
	svc, store, sub, user := newAnimationFixture(t, 0)

	_, _, err := svc.Create(ctx, user.ID, validCreateInput())
	if !errors.Is(err, apperr.ErrEntitlement) {
		t.Fatalf("Create() err=%v, want ErrEntitlement", err)
	}
	if apperr.HTTPStatus(err) != 403 || apperr.Message(err) != quotaExhaustedMessage {
		t.Fatalf("status=%d message=%q", apperr.HTTPStatus(err), apperr.Message(err))
	}
	animations, _ := store.FindAnimationsByUserID(ctx, user.ID)
	if len(animations) != 0 || len(sub.calls) != 0 {
		t.Fatalf("animations=%d submissions=%d, want none", len(animations), len(sub.calls))
	}
	got, _ := store.FindUserByID(ctx, user.ID)
	if got.GenerationsRemaining != 0 {
		t.Fatalf("GenerationsRemaining=%d, want 0", got.GenerationsRemaining)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateAnimationInput)
		field  string
		want   string
	}{
		{"short prompt", func(in *CreateAnimationInput) { in.Prompt = "circle" }, "prompt", "prompt must be at least 10 characters long"},
		{"short title", func(in *CreateAnimationInput) { in.Title = "ab" }, "title", "title must be at least 3 characters long"},
		{"unknown model", func(in *CreateAnimationInput) { in.AIModel = "claude" }, "aiModel", "aiModel must be one of: openai, gemini, groq"},
		{"duration too short", func(in *CreateAnimationInput) { in.Duration = 4 }, "duration", "duration must be at least 5"},
		{"duration too long", func(in *CreateAnimationInput) { in.Duration = 61 }, "duration", "duration must be at most 60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, sub, user := newAnimationFixture(t, 10)
			in := validCreateInput()
			tt.mutate(&in)

			_, _, err := svc.Create(context.Background(), user.ID, in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("Create() err=%v, want ErrValidation", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Fields[tt.field] == "" {
				t.Fatalf("fields=%v, want %s", verr, tt.field)
			}
			if apperr.Message(err) != tt.want {
				t.Fatalf("Message()=%q, want %q", apperr.Message(err), tt.want)
			}
			if len(sub.calls) != 0 {
				t.Fatal("pipeline submitted for invalid input")
			}
		})
	}
}

func TestRegenerate_ResetsAndResubmits(t *testing.T) {
	ctx := context.Background()
	svc, store, sub, user := newAnimationFixture(t, 10)
	animation, tasks, err := svc.Create(ctx, user.ID, validCreateInput())
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}

	// Simulate a finished run with a failed render.
	_ = store.UpdateAnimationScript(ctx, animation.ID, "old script")
	_ = store.UpdateAnimationCode(ctx, animation.ID, "old code")
	_ = store.UpdateAnimationVideo(ctx, animation.ID, "/api/videos/old.mp4")
	_ = store.UpdateAnimationStatus(ctx, animation.ID, db.StatusFailed)
	_ = store.UpdateTaskStatus(ctx, tasks[0].ID, db.StatusCompleted, "")
	_ = store.UpdateTaskStatus(ctx, tasks[2].ID, db.StatusFailed, "render exploded")

	prompt := "  Explain the Pythagorean theorem with squares  "
	reset, err := svc.Regenerate(ctx, user.ID, animation.ID, RegenerateInput{Prompt: &prompt})
	if err != nil {
		t.Fatalf("Regenerate() err=%v", err)
	}
	if reset.Status != db.StatusPending || reset.Prompt != strings.TrimSpace(prompt) {
		t.Fatalf("reset=%+v", reset)
	}
	if reset.Script.String != "old script" || reset.Code.String != "old code" || reset.VideoURL.String != "/api/videos/old.mp4" {
		t.Fatalf("previous artifacts not kept: %+v", reset)
	}

	after, _ := store.FindTasksByAnimationID(ctx, animation.ID)
	for _, task := range after {
		if task.Status != db.StatusPending || task.Error.Valid {
			t.Fatalf("task=%+v, want pending without error", task)
		}
	}
	if len(sub.calls) != 2 || sub.calls[1] != (submission{animation.ID, db.ModelGroq}) {
		t.Fatalf("submissions=%+v", sub.calls)
	}
	got, _ := store.FindUserByID(ctx, user.ID)
	if got.GenerationsRemaining != 8 {
		t.Fatalf("GenerationsRemaining=%d, want 8", got.GenerationsRemaining)
	}
}

func TestRegenerate_KeepsPromptWhenAbsent(t *testing.T) {
	ctx := context.Background()
	svc, _, _, user := newAnimationFixture(t, 10)
	animation, _, _ := svc.Create(ctx, user.ID, validCreateInput())

	empty := ""
	reset, err := svc.Regenerate(ctx, user.ID, animation.ID, RegenerateInput{Prompt: &empty})
	if err != nil {
		t.Fatalf("Regenerate() err=%v", err)
	}
	if reset.Prompt != animation.Prompt {
		t.Fatalf("Prompt=%q, want %q", reset.Prompt, animation.Prompt)
	}
}

func TestRegenerate_Errors(t *testing.T) {
	ctx := context.Background()
	svc, store, sub, user := newAnimationFixture(t, 10)
	animation, _, _ := svc.Create(ctx, user.ID, validCreateInput())
	other, _ := store.CreateUser(ctx, &db.User{Username: "eve", Email: "eve@example.com", PasswordHash: "x"})

	if _, err := svc.Regenerate(ctx, user.ID, uuid.New(), RegenerateInput{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown id err=%v, want ErrNotFound", err)
	}
	if _, err := svc.Regenerate(ctx, other.ID, animation.ID, RegenerateInput{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("foreign animation err=%v, want ErrForbidden", err)
	}
	short := "too short"
	if _, err := svc.Regenerate(ctx, user.ID, animation.ID, RegenerateInput{Prompt: &short}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("short prompt err=%v, want ErrValidation", err)
	}

	_ = store.SetUserGenerations(ctx, user.ID, 0)
	if _, err := svc.Regenerate(ctx, user.ID, animation.ID, RegenerateInput{}); !errors.Is(err, apperr.ErrEntitlement) {
		t.Fatalf("no quota err=%v, want ErrEntitlement", err)
	}
	if len(sub.calls) != 1 {
		t.Fatalf("submissions=%d, want only the create", len(sub.calls))
	}
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	svc, store, _, user := newAnimationFixture(t, 10)
	other, _ := store.CreateUser(ctx, &db.User{Username: "eve", Email: "eve@example.com", PasswordHash: "x"})

	list, err := svc.List(ctx, user.ID)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("List() on empty=%v, %v, want empty slice", list, err)
	}

	animation, _, _ := svc.Create(ctx, user.ID, validCreateInput())
	got, tasks, err := svc.Get(ctx, user.ID, animation.ID)
	if err != nil || got.ID != animation.ID || len(tasks) != 3 {
		t.Fatalf("Get()=%v, %d tasks, %v", got, len(tasks), err)
	}
	if _, _, err := svc.Get(ctx, other.ID, animation.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("Get() by other err=%v, want ErrForbidden", err)
	}
	list, _ = svc.List(ctx, user.ID)
	if len(list) != 1 {
		t.Fatalf("len(List())=%d, want 1", len(list))
	}
}

type failingDecrementStore struct {
	*memory.Store
}

func (failingDecrementStore) DecrementUserGenerations(context.Context, uuid.UUID) (*db.User, error) {
	return nil, sql.ErrConnDone
}

func TestCreate_DecrementFailureDoesNotSubmit(t *testing.T) {
	_, store, _, user := newAnimationFixture(t, 10)
	sub := &fakeSubmitter{}
	svc := NewAnimationService(failingDecrementStore{store}, sub)

	if _, _, err := svc.Create(context.Background(), user.ID, validCreateInput()); !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("Create() err=%v, want ErrConnDone", err)
	}
	if len(sub.calls) != 0 {
		t.Fatal("pipeline submitted after failed decrement")
	}
}
