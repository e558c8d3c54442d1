package queries

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// openTestStore connects to TEST_DATABASE_URL, which must point at a
// disposable database: the reconcile sweeps touch every row in it.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("skipping: TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	conn, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		t.Fatalf("ConnectContext() err=%v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("Migrate() err=%v", err)
	}
	return New(conn)
}

type seeded struct {
	user      *db.User
	animation *db.Animation
	tasks     []db.GenerationTask
}

func seed(t *testing.T, s *Store) seeded {
	t.Helper()
	ctx := context.Background()
	name := "u" + uuid.NewString()[:8]
	user, err := s.CreateUser(ctx, &db.User{Username: name, Email: name + "@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateUser() err=%v", err)
	}
	t.Cleanup(func() { _ = s.DeleteUser(context.Background(), user.ID) })
	animation, tasks, err := s.CreateAnimationWithTasks(ctx, &db.Animation{
		UserID:   user.ID,
		Prompt:   "Draw a circle growing from radius 0 to 2",
		Title:    "Circle",
		AIModel:  db.ModelOpenAI,
		Duration: 10,
	})
	if err != nil {
		t.Fatalf("CreateAnimationWithTasks() err=%v", err)
	}
	return seeded{user: user, animation: animation, tasks: tasks}
}

func reloadTasks(t *testing.T, s *Store, animationID uuid.UUID) []db.GenerationTask {
	t.Helper()
	tasks, err := s.FindTasksByAnimationID(context.Background(), animationID)
	if err != nil || len(tasks) != 3 {
		t.Fatalf("FindTasksByAnimationID()=%d, %v", len(tasks), err)
	}
	return tasks
}

func TestUpdateTaskStatus_StampsTimesAndError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fx := seed(t, s)
	id := fx.tasks[0].ID

	if err := s.UpdateTaskStatus(ctx, id, db.StatusProcessing, "ignored"); err != nil {
		t.Fatalf("UpdateTaskStatus(processing) err=%v", err)
	}
	task := reloadTasks(t, s, fx.animation.ID)[0]
	if !task.StartedAt.Valid || task.CompletedAt.Valid || task.Error.Valid {
		t.Fatalf("processing task=%+v, want started only", task)
	}

	if err := s.UpdateTaskStatus(ctx, id, db.StatusFailed, "rate limited"); err != nil {
		t.Fatalf("UpdateTaskStatus(failed) err=%v", err)
	}
	task = reloadTasks(t, s, fx.animation.ID)[0]
	if !task.CompletedAt.Valid || task.Error.String != "rate limited" {
		t.Fatalf("failed task=%+v", task)
	}

	if err := s.UpdateTaskStatus(ctx, uuid.New(), db.StatusCompleted, ""); err == nil {
		t.Fatal("UpdateTaskStatus(unknown) succeeded")
	}
}

func TestResetAnimation_PromptAndOutputs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fx := seed(t, s)
	id := fx.animation.ID
	_ = s.UpdateAnimationScript(ctx, id, "a circle grows")
	_ = s.UpdateAnimationVideo(ctx, id, "video_1")
	_ = s.UpdateAnimationStatus(ctx, id, db.StatusFailed)
	_ = s.UpdateTaskStatus(ctx, fx.tasks[1].ID, db.StatusFailed, "boom")

	got, err := s.ResetAnimation(ctx, id, nil)
	if err != nil {
		t.Fatalf("ResetAnimation(nil) err=%v", err)
	}
	if got.Prompt != fx.animation.Prompt || got.Status != db.StatusPending {
		t.Fatalf("reset without prompt=%+v", got)
	}
	if got.Script.String != "a circle grows" || got.VideoURL.String != "video_1" {
		t.Fatalf("outputs lost: script=%v video=%v", got.Script, got.VideoURL)
	}
	for _, task := range reloadTasks(t, s, id) {
		if task.Status != db.StatusPending || task.Error.Valid || task.CompletedAt.Valid {
			t.Fatalf("task %s not reset: %+v", task.TaskType, task)
		}
	}

	prompt := "Draw a square rotating twice around its center"
	got, err = s.ResetAnimation(ctx, id, &prompt)
	if err != nil || got.Prompt != prompt {
		t.Fatalf("ResetAnimation(prompt)=%+v, %v", got, err)
	}
}

func TestDecrementUserGenerations_StopsAtZero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fx := seed(t, s)
	if err := s.SetUserGenerations(ctx, fx.user.ID, 1); err != nil {
		t.Fatalf("SetUserGenerations() err=%v", err)
	}
	user, err := s.DecrementUserGenerations(ctx, fx.user.ID)
	if err != nil || user == nil || user.GenerationsRemaining != 0 {
		t.Fatalf("DecrementUserGenerations()=%+v, %v, want 0", user, err)
	}
	_, _ = s.DecrementUserGenerations(ctx, fx.user.ID)
	if got, _ := s.FindUserByID(ctx, fx.user.ID); got.GenerationsRemaining != 0 {
		t.Fatalf("GenerationsRemaining=%d, want 0", got.GenerationsRemaining)
	}
}

func TestReconcileSweeps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stuck := seed(t, s)
	between := seed(t, s)

	_ = s.UpdateAnimationStatus(ctx, stuck.animation.ID, db.StatusProcessing)
	_ = s.UpdateTaskStatus(ctx, stuck.tasks[0].ID, db.StatusProcessing, "")
	_ = s.UpdateAnimationStatus(ctx, between.animation.ID, db.StatusProcessing)
	_ = s.UpdateTaskStatus(ctx, between.tasks[0].ID, db.StatusCompleted, "")

	// A cutoff ahead of the database clock covers every row written above.
	cutoff := time.Now().Add(time.Hour)
	stale, err := s.FailStaleProcessingTasks(ctx, cutoff, "interrupted")
	if err != nil {
		t.Fatalf("FailStaleProcessingTasks() err=%v", err)
	}
	found := false
	for _, st := range stale {
		if st.TaskID == stuck.tasks[0].ID && st.AnimationID == stuck.animation.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("stale=%+v, want task %s", stale, stuck.tasks[0].ID)
	}
	if a, _ := s.FindAnimationByID(ctx, stuck.animation.ID); a.Status != db.StatusFailed {
		t.Fatalf("stuck animation=%s, want failed", a.Status)
	}

	runs, err := s.SettleOrphanedRuns(ctx, cutoff, "interrupted")
	if err != nil {
		t.Fatalf("SettleOrphanedRuns() err=%v", err)
	}
	var run *db.StaleRun
	for i := range runs {
		if runs[i].AnimationID == between.animation.ID {
			run = &runs[i]
		}
		if runs[i].AnimationID == stuck.animation.ID {
			t.Fatalf("stuck animation settled twice: %+v", runs[i])
		}
	}
	if run == nil || run.Status != db.StatusFailed || run.Task == nil || run.Task.TaskType != db.TaskCodeGeneration {
		t.Fatalf("run=%+v, want code_generation failed", run)
	}
	tasks := reloadTasks(t, s, between.animation.ID)
	if tasks[1].Status != db.StatusFailed || tasks[1].Error.String != "interrupted" || tasks[2].Status != db.StatusPending {
		t.Fatalf("tasks=%+v", tasks)
	}
	if a, _ := s.FindAnimationByID(ctx, between.animation.ID); a.Status != db.StatusFailed {
		t.Fatalf("between animation=%s, want failed", a.Status)
	}
}
