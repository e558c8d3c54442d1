package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
)

func newUser(t *testing.T, s *Store) *db.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &db.User{Username: "ada", Email: "ada@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateUser() err=%v", err)
	}
	return u
}

func TestCreateUser_DefaultQuotaAndDuplicates(t *testing.T) {
	s := New()
	u := newUser(t, s)
	if u.GenerationsRemaining != db.DefaultGenerations {
		t.Fatalf("GenerationsRemaining=%d, want %d", u.GenerationsRemaining, db.DefaultGenerations)
	}
	_, err := s.CreateUser(context.Background(), &db.User{Username: "other", Email: "ADA@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("CreateUser() err=%v, want ErrDuplicate", err)
	}
}

func TestDecrementUserGenerations_NeverNegative(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)
	if err := s.SetUserGenerations(ctx, u.ID, 1); err != nil {
		t.Fatalf("SetUserGenerations() err=%v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := s.DecrementUserGenerations(ctx, u.ID)
		if err != nil {
			t.Fatalf("DecrementUserGenerations() err=%v", err)
		}
		if got.GenerationsRemaining != 0 {
			t.Fatalf("GenerationsRemaining=%d after %d decrements, want 0", got.GenerationsRemaining, i+1)
		}
	}
	if got, _ := s.DecrementUserGenerations(ctx, uuid.New()); got != nil {
		t.Fatalf("DecrementUserGenerations(unknown)=%v, want nil", got)
	}
}

func TestCreateAnimationWithTasks_StageOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)
	a, tasks, err := s.CreateAnimationWithTasks(ctx, &db.Animation{UserID: u.ID, Prompt: "p", Title: "t", AIModel: db.ModelOpenAI, Duration: 10})
	if err != nil {
		t.Fatalf("CreateAnimationWithTasks() err=%v", err)
	}
	if a.Status != db.StatusPending {
		t.Fatalf("Status=%s, want pending", a.Status)
	}
	stored, _ := s.FindTasksByAnimationID(ctx, a.ID)
	if len(tasks) != 3 || len(stored) != 3 {
		t.Fatalf("tasks=%d stored=%d, want 3", len(tasks), len(stored))
	}
	for i, tt := range db.TaskTypes {
		if stored[i].TaskType != tt || stored[i].Status != db.StatusPending {
			t.Fatalf("task[%d]=%s/%s, want %s/pending", i, stored[i].TaskType, stored[i].Status, tt)
		}
	}
}

func TestUpdateTaskStatus_StampsTimes(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)
	_, tasks, _ := s.CreateAnimationWithTasks(ctx, &db.Animation{UserID: u.ID, Duration: 10})
	id := tasks[0].ID

	_ = s.UpdateTaskStatus(ctx, id, db.StatusProcessing, "")
	_ = s.UpdateTaskStatus(ctx, id, db.StatusFailed, "rate limited")
	got, _ := s.FindTasksByAnimationID(ctx, tasks[0].AnimationID)
	if !got[0].StartedAt.Valid || !got[0].CompletedAt.Valid {
		t.Fatalf("timestamps not stamped: %+v", got[0])
	}
	if got[0].Error.String != "rate limited" {
		t.Fatalf("Error=%q", got[0].Error.String)
	}
	if err := s.UpdateTaskStatus(ctx, uuid.New(), db.StatusProcessing, ""); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("UpdateTaskStatus(unknown) err=%v, want sql.ErrNoRows", err)
	}
}

func TestResetAnimation_KeepsOutputs(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)
	a, tasks, _ := s.CreateAnimationWithTasks(ctx, &db.Animation{UserID: u.ID, Prompt: "old", Duration: 10})
	_ = s.UpdateAnimationVideo(ctx, a.ID, "video_123")
	_ = s.UpdateAnimationStatus(ctx, a.ID, db.StatusCompleted)
	for _, task := range tasks {
		_ = s.UpdateTaskStatus(ctx, task.ID, db.StatusCompleted, "")
	}

	prompt := "new prompt"
	reset, err := s.ResetAnimation(ctx, a.ID, &prompt)
	if err != nil {
		t.Fatalf("ResetAnimation() err=%v", err)
	}
	if reset.Status != db.StatusPending || reset.Prompt != prompt || reset.VideoURL.String != "video_123" {
		t.Fatalf("reset=%+v", reset)
	}
	got, _ := s.FindTasksByAnimationID(ctx, a.ID)
	for _, task := range got {
		if task.Status != db.StatusPending || task.CompletedAt.Valid {
			t.Fatalf("task %s not reset: %+v", task.TaskType, task)
		}
	}
}

func TestFailStaleProcessingTasks(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return base }
	u := newUser(t, s)
	a, tasks, _ := s.CreateAnimationWithTasks(ctx, &db.Animation{UserID: u.ID, Duration: 10})
	_ = s.UpdateAnimationStatus(ctx, a.ID, db.StatusProcessing)
	_ = s.UpdateTaskStatus(ctx, tasks[0].ID, db.StatusProcessing, "")

	stale, _ := s.FailStaleProcessingTasks(ctx, base.Add(-time.Minute), "interrupted")
	if len(stale) != 0 {
		t.Fatalf("stale=%d before cutoff, want 0", len(stale))
	}
	stale, _ = s.FailStaleProcessingTasks(ctx, base.Add(time.Minute), "interrupted")
	if len(stale) != 1 || stale[0].TaskID != tasks[0].ID {
		t.Fatalf("stale=%+v", stale)
	}
	got, _ := s.FindAnimationByID(ctx, a.ID)
	if got.Status != db.StatusFailed {
		t.Fatalf("animation status=%s, want failed", got.Status)
	}
}

func TestSettleOrphanedRuns(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return base }
	u := newUser(t, s)

	// A run that failed a stage but crashed before finishing the animation.
	failed, failedTasks, _ := s.CreateAnimationWithTasks(ctx, &db.Animation{UserID: u.ID, Duration: 10})
	_ = s.UpdateAnimationStatus(ctx, failed.ID, db.StatusProcessing)
	_ = s.UpdateTaskStatus(ctx, failedTasks[0].ID, db.StatusFailed, "rate limited")

	// A run still working on a stage.
	live, liveTasks, _ := s.CreateAnimationWithTasks(ctx, &db.Animation{UserID: u.ID, Duration: 10})
	_ = s.UpdateAnimationStatus(ctx, live.ID, db.StatusProcessing)
	_ = s.UpdateTaskStatus(ctx, liveTasks[0].ID, db.StatusProcessing, "")

	runs, err := s.SettleOrphanedRuns(ctx, base.Add(time.Minute), "interrupted")
	if err != nil || len(runs) != 1 {
		t.Fatalf("SettleOrphanedRuns()=%+v, %v, want one run", runs, err)
	}
	if runs[0].AnimationID != failed.ID || runs[0].Status != db.StatusFailed || runs[0].Task != nil {
		t.Fatalf("run=%+v, want failed without a new task failure", runs[0])
	}
	tasks, _ := s.FindTasksByAnimationID(ctx, failed.ID)
	if tasks[0].Error.String != "rate limited" || tasks[1].Status != db.StatusPending {
		t.Fatalf("tasks=%+v, want original failure kept", tasks)
	}
	if got, _ := s.FindAnimationByID(ctx, live.ID); got.Status != db.StatusProcessing {
		t.Fatalf("live animation=%s, want processing", got.Status)
	}
}

func TestDeleteUser_Cascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)
	a, _, _ := s.CreateAnimationWithTasks(ctx, &db.Animation{UserID: u.ID, Duration: 10})

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser() err=%v", err)
	}
	if got, _ := s.FindAnimationByID(ctx, a.ID); got != nil {
		t.Fatalf("animation survived user deletion: %+v", got)
	}
	if tasks, _ := s.FindTasksByAnimationID(ctx, a.ID); len(tasks) != 0 {
		t.Fatalf("tasks=%d after deletion, want 0", len(tasks))
	}
	if err := s.DeleteUser(ctx, u.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("DeleteUser(again) err=%v, want sql.ErrNoRows", err)
	}
}
